package orders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPollInterval = 4 * time.Second

var (
	ErrUnknownOrder      = errors.New("unknown order id")
	ErrReplaceIncomplete = errors.New("replace finished without a new order id")
)

type orderWatcher struct {
	cancel context.CancelFunc
}

// OrderManager is the lifecycle authority for live orders: it places them at
// the broker, runs one polling goroutine per tracked order, translates status
// snapshots into events for the registered listener, and serializes
// replacement per order id through a ReplaceLock.
type OrderManager struct {
	gateway      entity.BrokerGateway
	pollInterval time.Duration
	replaceLock  *ReplaceLock

	mu        sync.Mutex
	listeners map[string]entity.OrderListener
	requests  map[string]entity.OrderRequest
	watchers  map[string]*orderWatcher
}

type Option func(*OrderManager)

func WithPollInterval(interval time.Duration) Option {
	return func(m *OrderManager) {
		if interval > 0 {
			m.pollInterval = interval
		}
	}
}

func NewOrderManager(gateway entity.BrokerGateway, opts ...Option) *OrderManager {
	manager := &OrderManager{
		gateway:      gateway,
		pollInterval: defaultPollInterval,
		replaceLock:  NewReplaceLock(),
		listeners:    make(map[string]entity.OrderListener),
		requests:     make(map[string]entity.OrderRequest),
		watchers:     make(map[string]*orderWatcher),
	}

	for _, opt := range opts {
		opt(manager)
	}

	return manager
}

// PlaceOrder submits the request to the broker and, on success, registers the
// listener and starts a polling goroutine for the returned order id. A failed
// gateway call registers nothing.
func (m *OrderManager) PlaceOrder(ctx context.Context, req entity.OrderRequest, listener entity.OrderListener) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	resp, err := m.gateway.PlaceOrder(ctx, req)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"instrument_uid": req.InstrumentUID,
			"direction":      req.Direction,
		}).Errorf("place order failed: %v", err)
		return "", err
	}

	orderID := resp.OrderID

	m.mu.Lock()
	m.listeners[orderID] = listener
	m.requests[orderID] = req
	m.startWatcherLocked(orderID)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"order_id":        orderID,
		"client_order_id": req.ClientOrderID,
		"instrument_uid":  req.InstrumentUID,
		"direction":       req.Direction,
		"price":           req.Price.String(),
		"quantity":        req.Quantity,
	}).Info("order placed")

	return orderID, nil
}

// ReplaceOrder cancels a live order and re-places it with a new price and
// quantity, transferring the registered listener to the new order id. The
// per-order replace lock is held across recheck, cancel and re-place so two
// concurrent replaces for the same id can never both cancel.
//
// An order observed fully filled during the recheck is not an error: the
// replace becomes a no-op, returns an empty id, and the FILLED event arrives
// through the normal polling channel.
func (m *OrderManager) ReplaceOrder(ctx context.Context, oldID string, newPrice decimal.Decimal, newQuantity int64) (string, error) {
	m.mu.Lock()
	_, tracked := m.requests[oldID]
	m.mu.Unlock()
	if !tracked {
		return "", ErrUnknownOrder
	}

	lock := m.replaceLock.Get(oldID)
	lock.Lock()
	defer func() {
		lock.Unlock()
		m.replaceLock.Release(oldID)
	}()

	// A competing replace may have completed while this caller was blocked
	// on the lock; its bookkeeping transfer makes the old id unknown.
	m.mu.Lock()
	oldReq, tracked := m.requests[oldID]
	m.mu.Unlock()
	if !tracked {
		return "", ErrUnknownOrder
	}

	state, err := m.gateway.GetOrderStatus(ctx, oldID)
	if err != nil {
		return "", err
	}
	if state.ReportStatus == entity.OrderReportStatusFill {
		logrus.WithField("order_id", oldID).Info("replace skipped, order already filled")
		return "", nil
	}

	listener, detached := m.detachWatcher(oldID)

	if err := m.gateway.CancelOrder(ctx, oldID); err != nil {
		// Keep the order visible: restart polling before surfacing the error.
		if detached {
			m.restoreWatcher(oldID, oldReq, listener)
		}
		return "", err
	}

	newReq := oldReq
	newReq.ClientOrderID = uuid.NewString()
	newReq.Price = newPrice
	newReq.Quantity = newQuantity

	newID, err := m.PlaceOrder(ctx, newReq, listener)
	if err != nil {
		// The old order is already canceled at the venue, but its CANCELED
		// event still has to reach the listener; restart polling so the
		// terminal status arrives through the normal channel.
		if detached {
			m.restoreWatcher(oldID, oldReq, listener)
		}
		return "", err
	}
	m.dropBookkeeping(oldID)
	if newID == "" {
		return "", ErrReplaceIncomplete
	}

	logrus.WithFields(logrus.Fields{
		"old_order_id": oldID,
		"new_order_id": newID,
		"price":        newPrice.String(),
		"quantity":     newQuantity,
	}).Info("order replaced")

	return newID, nil
}

// TrackOrder registers an order that is already live at the broker without
// re-submitting it, typically after restoring persisted state on startup.
// Tracking an id that already has a watcher is a no-op.
func (m *OrderManager) TrackOrder(orderID string, req entity.OrderRequest, listener entity.OrderListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.watchers[orderID]; ok {
		return
	}

	m.listeners[orderID] = listener
	m.requests[orderID] = req
	m.startWatcherLocked(orderID)

	logrus.WithField("order_id", orderID).Info("order tracking resumed")
}

// CancelOrder cancels at the broker, then drops local bookkeeping. Transport
// errors propagate and leave the order tracked.
func (m *OrderManager) CancelOrder(ctx context.Context, orderID string) error {
	if err := m.gateway.CancelOrder(ctx, orderID); err != nil {
		return err
	}

	m.mu.Lock()
	if w, ok := m.watchers[orderID]; ok {
		delete(m.watchers, orderID)
		w.cancel()
	}
	delete(m.listeners, orderID)
	delete(m.requests, orderID)
	m.mu.Unlock()

	logrus.WithField("order_id", orderID).Info("order canceled")

	return nil
}

// CancelAll stops every polling goroutine and clears bookkeeping. It does not
// request venue-side cancellation; resting orders stay live at the broker
// unless canceled individually first.
func (m *OrderManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for orderID, w := range m.watchers {
		w.cancel()
		delete(m.watchers, orderID)
	}

	m.listeners = make(map[string]entity.OrderListener)
	m.requests = make(map[string]entity.OrderRequest)

	logrus.Info("order tracking stopped for all orders")
}

// TrackedOrders returns the ids currently under management, sorted.
func (m *OrderManager) TrackedOrders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.requests))
	for orderID := range m.requests {
		ids = append(ids, orderID)
	}
	sort.Strings(ids)

	return ids
}

// startWatcherLocked must be called with m.mu held.
func (m *OrderManager) startWatcherLocked(orderID string) {
	watchCtx, cancel := context.WithCancel(context.Background())
	w := &orderWatcher{cancel: cancel}
	m.watchers[orderID] = w

	go m.watchOrder(watchCtx, orderID, w)
}

func (m *OrderManager) watchOrder(ctx context.Context, orderID string, w *orderWatcher) {
	defer m.cleanupWatcher(orderID, w)

	for {
		state, err := m.gateway.GetOrderStatus(ctx, orderID)
		if ctx.Err() != nil {
			// A fetch that completes while the watcher is being detached
			// must be discarded, not acted on.
			return
		}

		if err != nil {
			// A single transient read failure never kills the watcher.
			logrus.WithField("order_id", orderID).Warnf("order status fetch failed: %v", err)
		} else if event, ok := translateOrderState(state); ok {
			m.broadcast(ctx, event)
			if event.Type.IsTerminal() {
				logrus.WithFields(logrus.Fields{
					"order_id": orderID,
					"event":    event.Type,
				}).Info("order reached terminal state")
				return
			}
		}

		select {
		case <-time.After(m.pollInterval):
		case <-ctx.Done():
			return
		}
	}
}

// cleanupWatcher removes bookkeeping only when this watcher still owns its
// map slot. A watcher detached by a replace leaves the bookkeeping to the
// replace, which either restores a new watcher or transfers the entries to
// the superseding order id.
func (m *OrderManager) cleanupWatcher(orderID string, w *orderWatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watchers[orderID] != w {
		return
	}

	delete(m.watchers, orderID)
	delete(m.listeners, orderID)
	delete(m.requests, orderID)
}

func (m *OrderManager) broadcast(ctx context.Context, event entity.OrderEvent) {
	m.mu.Lock()
	listener := m.listeners[event.OrderID]
	m.mu.Unlock()

	if listener == nil {
		return
	}

	listener.OnOrderEvent(ctx, event)
}

func (m *OrderManager) detachWatcher(orderID string) (entity.OrderListener, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	listener := m.listeners[orderID]
	w, ok := m.watchers[orderID]
	if !ok {
		return listener, false
	}

	// Remove the map entry before canceling so the watcher's cleanup skips
	// the listener/request entries still needed for the re-place.
	delete(m.watchers, orderID)
	w.cancel()

	return listener, true
}

func (m *OrderManager) restoreWatcher(orderID string, req entity.OrderRequest, listener entity.OrderListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners[orderID] = listener
	m.requests[orderID] = req
	m.startWatcherLocked(orderID)
}

func (m *OrderManager) dropBookkeeping(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.listeners, orderID)
	delete(m.requests, orderID)
}
