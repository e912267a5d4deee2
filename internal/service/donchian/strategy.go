package donchian

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	two        = decimal.NewFromInt(2)
	riskPerATR = decimal.RequireFromString("0.01")
)

// OrderManager is the slice of the order lifecycle manager the strategy
// depends on.
type OrderManager interface {
	PlaceOrder(ctx context.Context, req entity.OrderRequest, listener entity.OrderListener) (string, error)
	ReplaceOrder(ctx context.Context, oldID string, newPrice decimal.Decimal, newQuantity int64) (string, error)
	TrackOrder(orderID string, req entity.OrderRequest, listener entity.OrderListener)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAll()
}

type Config struct {
	SizePortfolio decimal.Decimal
	Source        string
	StateKey      string
}

type Position struct {
	Direction      entity.OrderDirection `json:"direction"`
	Quantity       int64                 `json:"quantity"`
	EntryPrice     decimal.Decimal       `json:"entry_price"`
	NextEntryPrice decimal.Decimal       `json:"next_entry_price"`
	NextStopLoss   decimal.Decimal       `json:"next_stop_loss"`
}

func DefaultStateKey(ticker string) string {
	return fmt.Sprintf("donchian:%s", ticker)
}

type strategyState interface {
	name() string
	onPrice(ctx context.Context, price decimal.Decimal) error
	onOrderEvent(ctx context.Context, event entity.OrderEvent)
}

// Strategy runs the Donchian breakout entry for a single instrument. While
// waiting for a breakout it holds at most one outstanding order; price moves
// beyond half an ATR from the resting price walk the order up or down through
// the replace path. A fill moves the strategy into the in-position state.
type Strategy struct {
	mu         sync.Mutex
	config     Config
	instrument entity.Instrument
	orders     OrderManager
	stateStore StateStore

	data    entity.ChannelData
	hasData bool

	state strategyState

	outstandingID  string
	outstandingReq entity.OrderRequest
	lastQuantity   int64
	filledLots     int64

	position Position
}

func NewStrategy(ctx context.Context, config Config, instrument entity.Instrument, orders OrderManager, stateStore StateStore) (*Strategy, error) {
	if config.SizePortfolio.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("size portfolio must be greater than zero")
	}
	if config.Source == "" {
		config.Source = "donchian"
	}
	if config.StateKey == "" {
		config.StateKey = DefaultStateKey(instrument.Ticker)
	}

	strategy := &Strategy{
		config:     config,
		instrument: instrument,
		orders:     orders,
		stateStore: stateStore,
	}
	strategy.state = &waitingBreakoutState{s: strategy}

	if strategy.stateStore != nil {
		persisted, found, err := strategy.stateStore.Load(ctx, config.StateKey)
		if err != nil {
			return nil, err
		}
		if found {
			strategy.restoreSnapshot(persisted)

			logrus.WithFields(logrus.Fields{
				"stateKey":       config.StateKey,
				"state":          strategy.state.name(),
				"outstandingID":  strategy.outstandingID,
				"positionLots":   strategy.position.Quantity,
				"instrument_uid": instrument.UID,
			}).Info("donchian state restored from redis")
		}
	}

	return strategy, nil
}

// SetChannelData installs freshly computed channel bounds. Until the first
// call the strategy ignores price ticks.
func (s *Strategy) SetChannelData(data entity.ChannelData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = data
	s.hasData = true
}

func (s *Strategy) InstrumentUID() string {
	return s.instrument.UID
}

func (s *Strategy) OnPrice(ctx context.Context, tick entity.PriceTick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tick.Price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("price must be greater than zero")
	}

	return s.state.onPrice(ctx, tick.Price)
}

// OnOrderEvent implements entity.OrderListener. It runs on a polling
// goroutine and must not block indefinitely.
func (s *Strategy) OnOrderEvent(ctx context.Context, event entity.OrderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.onOrderEvent(ctx, event)
}

type waitingBreakoutState struct {
	s *Strategy
}

func (st *waitingBreakoutState) name() string { return "waiting_breakout" }

func (st *waitingBreakoutState) onPrice(ctx context.Context, price decimal.Decimal) error {
	s := st.s

	if !s.hasData || s.data.AverageTrueRange.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	// An outstanding order is only walked via replace; a fresh breakout is
	// never acted on while one exists.
	if s.outstandingID != "" {
		return s.adjustOutstanding(ctx, price)
	}

	direction, ok := checkBreakout(price, s.data)
	if !ok {
		return nil
	}

	quantity := calcQuantity(s.config.SizePortfolio, s.data.AverageTrueRange, s.instrument.PointPrice())
	if quantity <= 0 {
		logrus.WithFields(logrus.Fields{
			"instrument_uid": s.instrument.UID,
			"atr":            s.data.AverageTrueRange.String(),
		}).Warn("breakout signal skipped, computed quantity is zero")
		return nil
	}

	req := entity.OrderRequest{
		ClientOrderID: uuid.NewString(),
		InstrumentUID: s.instrument.UID,
		Direction:     direction,
		Quantity:      quantity,
		Price:         entryPrice(direction, s.data, s.instrument.MinPriceIncrement),
		Type:          entity.OrderTypeLimit,
		TimeInForce:   entity.TimeInForceDay,
		PriceType:     entity.PriceTypePoint,
		Source:        s.config.Source,
	}

	orderID, err := s.orders.PlaceOrder(ctx, req, s)
	if err != nil {
		return err
	}

	s.outstandingID = orderID
	s.outstandingReq = req
	s.lastQuantity = quantity
	s.filledLots = 0

	logrus.WithFields(logrus.Fields{
		"instrument_uid": s.instrument.UID,
		"direction":      direction,
		"order_id":       orderID,
		"price":          req.Price.String(),
		"quantity":       quantity,
	}).Info("breakout entry submitted")

	return s.persistState(ctx)
}

func (st *waitingBreakoutState) onOrderEvent(ctx context.Context, event entity.OrderEvent) {
	s := st.s

	if event.OrderID != s.outstandingID {
		return
	}

	switch event.Type {
	case entity.OrderEventPartial:
		s.filledLots = event.FilledLots
		logrus.WithFields(logrus.Fields{
			"order_id":    event.OrderID,
			"filled_lots": event.FilledLots,
		}).Info("entry order partially filled")
	case entity.OrderEventFilled:
		s.enterPosition(ctx, event)
	case entity.OrderEventCanceled, entity.OrderEventRejected:
		logrus.WithFields(logrus.Fields{
			"order_id": event.OrderID,
			"event":    event.Type,
		}).Info("entry order closed without position")
		s.clearOutstanding()
		_ = s.persistState(ctx)
	}
}

type inPositionState struct {
	s *Strategy
}

func (st *inPositionState) name() string { return "in_position" }

// Exit management is handled elsewhere; while in position price ticks and
// order events are ignored.
func (st *inPositionState) onPrice(ctx context.Context, price decimal.Decimal) error {
	return nil
}

func (st *inPositionState) onOrderEvent(ctx context.Context, event entity.OrderEvent) {}

func (s *Strategy) adjustOutstanding(ctx context.Context, price decimal.Decimal) error {
	newPrice, ok := replacePrice(price, s.outstandingReq, s.data.AverageTrueRange)
	if !ok {
		return nil
	}

	remaining := s.lastQuantity - s.filledLots
	if remaining <= 0 {
		// Everything reported filled through partials; the FILLED event is
		// already in flight.
		return nil
	}

	newID, err := s.orders.ReplaceOrder(ctx, s.outstandingID, newPrice, remaining)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"order_id": s.outstandingID,
		}).Errorf("replace failed: %v", err)
		return err
	}
	if newID == "" {
		// Fill race: keep the current bookkeeping and wait for FILLED.
		return nil
	}

	s.outstandingID = newID
	s.outstandingReq.Price = newPrice
	s.outstandingReq.Quantity = remaining
	s.lastQuantity = remaining
	s.filledLots = 0

	logrus.WithFields(logrus.Fields{
		"instrument_uid": s.instrument.UID,
		"order_id":       newID,
		"price":          newPrice.String(),
		"quantity":       remaining,
	}).Info("entry order repriced")

	return s.persistState(ctx)
}

func (s *Strategy) enterPosition(ctx context.Context, event entity.OrderEvent) {
	halfATR := s.data.AverageTrueRange.Div(two)
	doubleATR := s.data.AverageTrueRange.Mul(two)
	direction := s.outstandingReq.Direction

	position := Position{
		Direction:  direction,
		Quantity:   event.FilledLots,
		EntryPrice: event.AvgPrice,
	}
	if direction == entity.OrderDirectionBuy {
		position.NextEntryPrice = event.AvgPrice.Add(halfATR)
		position.NextStopLoss = event.AvgPrice.Sub(doubleATR)
	} else {
		position.NextEntryPrice = event.AvgPrice.Sub(halfATR)
		position.NextStopLoss = event.AvgPrice.Add(doubleATR)
	}

	s.position = position
	s.clearOutstanding()
	s.state = &inPositionState{s: s}

	logrus.WithFields(logrus.Fields{
		"instrument_uid": s.instrument.UID,
		"direction":      direction,
		"quantity":       position.Quantity,
		"entry_price":    position.EntryPrice.String(),
		"next_entry":     position.NextEntryPrice.String(),
		"next_stop_loss": position.NextStopLoss.String(),
	}).Info("position entered")

	_ = s.persistState(ctx)
}

// Snapshot returns a copy of the current strategy state, safe to serve from
// status endpoints.
func (s *Strategy) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *Strategy) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		State:               s.state.name(),
		OutstandingID:       s.outstandingID,
		Request:             s.outstandingReq,
		OutstandingQuantity: s.lastQuantity,
		FilledLots:          s.filledLots,
		Position:            s.position,
	}
}

// persistState writes the snapshot best effort. A persistence failure must
// not interrupt trading, so it is logged and swallowed.
func (s *Strategy) persistState(ctx context.Context) error {
	if s.stateStore == nil {
		return nil
	}

	if err := s.stateStore.Save(ctx, s.config.StateKey, s.snapshotLocked()); err != nil {
		logrus.WithField("stateKey", s.config.StateKey).Warnf("failed to persist donchian state: %v", err)
	}

	return nil
}

func (s *Strategy) restoreSnapshot(snapshot StateSnapshot) {
	if snapshot.State == (&inPositionState{}).name() {
		s.position = snapshot.Position
		s.state = &inPositionState{s: s}
		return
	}

	if snapshot.OutstandingID != "" && snapshot.Request.InstrumentUID != "" {
		s.outstandingID = snapshot.OutstandingID
		s.outstandingReq = snapshot.Request
		s.lastQuantity = snapshot.OutstandingQuantity
		s.filledLots = snapshot.FilledLots
		s.orders.TrackOrder(snapshot.OutstandingID, snapshot.Request, s)
	}
}

func (s *Strategy) clearOutstanding() {
	s.outstandingID = ""
	s.outstandingReq = entity.OrderRequest{}
	s.lastQuantity = 0
	s.filledLots = 0
}

func checkBreakout(price decimal.Decimal, data entity.ChannelData) (entity.OrderDirection, bool) {
	halfATR := data.AverageTrueRange.Div(two)

	if price.GreaterThan(data.BreakoutLongHigh.Add(halfATR)) {
		return entity.OrderDirectionBuy, true
	}
	if price.LessThan(data.BreakoutShortLow.Sub(halfATR)) {
		return entity.OrderDirectionSell, true
	}

	return "", false
}

// replacePrice walks the resting price half an ATR toward the market once the
// tick crosses that far from it.
func replacePrice(price decimal.Decimal, req entity.OrderRequest, atr decimal.Decimal) (decimal.Decimal, bool) {
	halfATR := atr.Div(two)

	switch req.Direction {
	case entity.OrderDirectionBuy:
		threshold := req.Price.Add(halfATR)
		if price.GreaterThanOrEqual(threshold) {
			return threshold, true
		}
	case entity.OrderDirectionSell:
		threshold := req.Price.Sub(halfATR)
		if price.LessThanOrEqual(threshold) {
			return threshold, true
		}
	}

	return decimal.Decimal{}, false
}

// calcQuantity sizes the order so one ATR move is worth about 1% of the
// portfolio. Lots are floored; fractional lots are never submitted.
func calcQuantity(sizePortfolio, atr, pointPrice decimal.Decimal) int64 {
	if atr.LessThanOrEqual(decimal.Zero) {
		return 0
	}

	return riskPerATR.Mul(sizePortfolio).Div(atr).Mul(pointPrice).Floor().IntPart()
}

func entryPrice(direction entity.OrderDirection, data entity.ChannelData, minPriceIncrement decimal.Decimal) decimal.Decimal {
	if direction == entity.OrderDirectionBuy {
		return data.BreakoutLongHigh.Add(minPriceIncrement)
	}

	return data.BreakoutShortLow.Sub(minPriceIncrement)
}
