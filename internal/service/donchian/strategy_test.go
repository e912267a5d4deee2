package donchian

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type replaceCall struct {
	OrderID  string
	Price    decimal.Decimal
	Quantity int64
}

type fakeOrderManager struct {
	mu           sync.Mutex
	nextID       int
	placed       []entity.OrderRequest
	replaced     []replaceCall
	tracked      []string
	canceled     []string
	replaceEmpty bool
	placeErr     error
}

func (f *fakeOrderManager) PlaceOrder(ctx context.Context, req entity.OrderRequest, listener entity.OrderListener) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.placeErr != nil {
		return "", f.placeErr
	}

	f.nextID++
	f.placed = append(f.placed, req)
	return fmt.Sprintf("ord-%d", f.nextID), nil
}

func (f *fakeOrderManager) ReplaceOrder(ctx context.Context, oldID string, newPrice decimal.Decimal, newQuantity int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.replaced = append(f.replaced, replaceCall{OrderID: oldID, Price: newPrice, Quantity: newQuantity})
	if f.replaceEmpty {
		return "", nil
	}

	f.nextID++
	return fmt.Sprintf("ord-%d", f.nextID), nil
}

func (f *fakeOrderManager) TrackOrder(orderID string, req entity.OrderRequest, listener entity.OrderListener) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tracked = append(f.tracked, orderID)
}

func (f *fakeOrderManager) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.canceled = append(f.canceled, orderID)
	return nil
}

func (f *fakeOrderManager) CancelAll() {}

func (f *fakeOrderManager) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.placed)
}

type fakeStateStore struct {
	mu        sync.Mutex
	snapshots map[string]StateSnapshot
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{snapshots: make(map[string]StateSnapshot)}
}

func (f *fakeStateStore) Load(ctx context.Context, key string) (StateSnapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot, ok := f.snapshots[key]
	return snapshot, ok, nil
}

func (f *fakeStateStore) Save(ctx context.Context, key string, snapshot StateSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.snapshots[key] = snapshot
	return nil
}

func (f *fakeStateStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.snapshots, key)
	return nil
}

func testInstrument() entity.Instrument {
	return entity.Instrument{
		UID:                     "instrument-1",
		Ticker:                  "TEST",
		MinPriceIncrement:       decimal.RequireFromString("0.01"),
		MinPriceIncrementAmount: decimal.RequireFromString("0.01"),
		Lot:                     1,
	}
}

func testChannelData() entity.ChannelData {
	return entity.ChannelData{
		BreakoutLongHigh:   decimal.NewFromInt(100),
		BreakoutShortLow:   decimal.NewFromInt(90),
		BreakoutLongHigh10: decimal.NewFromInt(98),
		BreakoutShortLow10: decimal.NewFromInt(92),
		AverageTrueRange:   decimal.NewFromInt(10),
	}
}

func newTestStrategy(t *testing.T, orders OrderManager) *Strategy {
	t.Helper()

	strategy, err := NewStrategy(context.Background(), Config{
		SizePortfolio: decimal.NewFromInt(1_000_000),
	}, testInstrument(), orders, nil)
	require.NoError(t, err)

	strategy.SetChannelData(testChannelData())
	return strategy
}

func tick(price string) entity.PriceTick {
	return entity.PriceTick{
		InstrumentUID: "instrument-1",
		Price:         decimal.RequireFromString(price),
	}
}

func TestNoSignalWithoutChannelData(t *testing.T) {
	orders := &fakeOrderManager{}
	strategy, err := NewStrategy(context.Background(), Config{
		SizePortfolio: decimal.NewFromInt(1_000_000),
	}, testInstrument(), orders, nil)
	require.NoError(t, err)

	require.NoError(t, strategy.OnPrice(context.Background(), tick("200")))
	assert.Zero(t, orders.placedCount())
}

func TestBreakoutBoundaryIsExclusive(t *testing.T) {
	// long boundary is high + ATR/2 = 105, short boundary is low - ATR/2 = 85
	orders := &fakeOrderManager{}
	strategy := newTestStrategy(t, orders)

	require.NoError(t, strategy.OnPrice(context.Background(), tick("105")))
	assert.Zero(t, orders.placedCount())

	require.NoError(t, strategy.OnPrice(context.Background(), tick("85")))
	assert.Zero(t, orders.placedCount())

	require.NoError(t, strategy.OnPrice(context.Background(), tick("105.01")))
	require.Equal(t, 1, orders.placedCount())

	placed := orders.placed[0]
	assert.Equal(t, entity.OrderDirectionBuy, placed.Direction)
	assert.True(t, placed.Price.Equal(decimal.RequireFromString("100.01")), "entry rests one increment beyond the channel, got %s", placed.Price)
	assert.Equal(t, int64(1000), placed.Quantity)
}

func TestShortBreakoutPlacesSell(t *testing.T) {
	orders := &fakeOrderManager{}
	strategy := newTestStrategy(t, orders)

	require.NoError(t, strategy.OnPrice(context.Background(), tick("84.99")))
	require.Equal(t, 1, orders.placedCount())

	placed := orders.placed[0]
	assert.Equal(t, entity.OrderDirectionSell, placed.Direction)
	assert.True(t, placed.Price.Equal(decimal.RequireFromString("89.99")))
}

func TestOutstandingOrderSuppressesNewSignals(t *testing.T) {
	orders := &fakeOrderManager{}
	strategy := newTestStrategy(t, orders)

	require.NoError(t, strategy.OnPrice(context.Background(), tick("105.01")))
	require.Equal(t, 1, orders.placedCount())

	// still a breakout price, but inside the replace threshold of the
	// resting order
	require.NoError(t, strategy.OnPrice(context.Background(), tick("105.005")))
	assert.Equal(t, 1, orders.placedCount())
	assert.Empty(t, orders.replaced)
}

func TestOutstandingOrderWalksWithMarket(t *testing.T) {
	orders := &fakeOrderManager{}
	strategy := newTestStrategy(t, orders)

	require.NoError(t, strategy.OnPrice(context.Background(), tick("105.01")))
	require.Equal(t, 1, orders.placedCount())

	// resting at 100.01, replace threshold is 100.01 + ATR/2 = 105.01...
	// a tick at 106 walks the order up instead of placing a second one
	require.NoError(t, strategy.OnPrice(context.Background(), tick("106")))
	require.Len(t, orders.replaced, 1)
	assert.Equal(t, 1, orders.placedCount())
	assert.Equal(t, "ord-1", orders.replaced[0].OrderID)
	assert.True(t, orders.replaced[0].Price.Equal(decimal.RequireFromString("105.01")))
	assert.Equal(t, int64(1000), orders.replaced[0].Quantity)
}

func TestReplaceAfterPartialUsesRemainingQuantity(t *testing.T) {
	orders := &fakeOrderManager{}
	strategy := newTestStrategy(t, orders)

	require.NoError(t, strategy.OnPrice(context.Background(), tick("105.01")))

	strategy.OnOrderEvent(context.Background(), entity.OrderEvent{
		OrderID:    "ord-1",
		Type:       entity.OrderEventPartial,
		FilledLots: 400,
	})

	require.NoError(t, strategy.OnPrice(context.Background(), tick("106")))
	require.Len(t, orders.replaced, 1)
	assert.Equal(t, int64(600), orders.replaced[0].Quantity)
}

func TestReplaceFillRaceKeepsBookkeeping(t *testing.T) {
	orders := &fakeOrderManager{replaceEmpty: true}
	strategy := newTestStrategy(t, orders)

	require.NoError(t, strategy.OnPrice(context.Background(), tick("105.01")))
	require.NoError(t, strategy.OnPrice(context.Background(), tick("106")))

	// the empty id means the order filled mid-replace; keep waiting for
	// the FILLED event under the original id
	snapshot := strategy.Snapshot()
	assert.Equal(t, "ord-1", snapshot.OutstandingID)

	strategy.OnOrderEvent(context.Background(), entity.OrderEvent{
		OrderID:    "ord-1",
		Type:       entity.OrderEventFilled,
		FilledLots: 1000,
		AvgPrice:   decimal.RequireFromString("100.01"),
	})

	assert.Equal(t, "in_position", strategy.Snapshot().State)
}

func TestFilledEventEntersPosition(t *testing.T) {
	orders := &fakeOrderManager{}
	strategy := newTestStrategy(t, orders)

	require.NoError(t, strategy.OnPrice(context.Background(), tick("105.01")))

	strategy.OnOrderEvent(context.Background(), entity.OrderEvent{
		OrderID:    "ord-1",
		Type:       entity.OrderEventFilled,
		FilledLots: 1000,
		AvgPrice:   decimal.NewFromInt(105),
	})

	snapshot := strategy.Snapshot()
	require.Equal(t, "in_position", snapshot.State)
	assert.Empty(t, snapshot.OutstandingID)
	assert.Equal(t, entity.OrderDirectionBuy, snapshot.Position.Direction)
	assert.Equal(t, int64(1000), snapshot.Position.Quantity)
	assert.True(t, snapshot.Position.NextEntryPrice.Equal(decimal.NewFromInt(110)), "next entry is avg + ATR/2")
	assert.True(t, snapshot.Position.NextStopLoss.Equal(decimal.NewFromInt(85)), "stop is avg - 2*ATR")

	// in position, further ticks are ignored
	require.NoError(t, strategy.OnPrice(context.Background(), tick("200")))
	assert.Equal(t, 1, orders.placedCount())
}

func TestShortFillPositionLevels(t *testing.T) {
	orders := &fakeOrderManager{}
	strategy := newTestStrategy(t, orders)

	require.NoError(t, strategy.OnPrice(context.Background(), tick("84.99")))

	strategy.OnOrderEvent(context.Background(), entity.OrderEvent{
		OrderID:    "ord-1",
		Type:       entity.OrderEventFilled,
		FilledLots: 1000,
		AvgPrice:   decimal.NewFromInt(85),
	})

	snapshot := strategy.Snapshot()
	require.Equal(t, "in_position", snapshot.State)
	assert.Equal(t, entity.OrderDirectionSell, snapshot.Position.Direction)
	assert.True(t, snapshot.Position.NextEntryPrice.Equal(decimal.NewFromInt(80)))
	assert.True(t, snapshot.Position.NextStopLoss.Equal(decimal.NewFromInt(105)))
}

func TestCanceledEventClearsOutstanding(t *testing.T) {
	orders := &fakeOrderManager{}
	strategy := newTestStrategy(t, orders)

	require.NoError(t, strategy.OnPrice(context.Background(), tick("105.01")))

	strategy.OnOrderEvent(context.Background(), entity.OrderEvent{
		OrderID: "ord-1",
		Type:    entity.OrderEventCanceled,
	})

	snapshot := strategy.Snapshot()
	assert.Equal(t, "waiting_breakout", snapshot.State)
	assert.Empty(t, snapshot.OutstandingID)

	// free to act on the next breakout
	require.NoError(t, strategy.OnPrice(context.Background(), tick("105.01")))
	assert.Equal(t, 2, orders.placedCount())
}

func TestEventsForUnknownOrderAreIgnored(t *testing.T) {
	orders := &fakeOrderManager{}
	strategy := newTestStrategy(t, orders)

	require.NoError(t, strategy.OnPrice(context.Background(), tick("105.01")))

	strategy.OnOrderEvent(context.Background(), entity.OrderEvent{
		OrderID: "ord-999",
		Type:    entity.OrderEventFilled,
	})

	snapshot := strategy.Snapshot()
	assert.Equal(t, "waiting_breakout", snapshot.State)
	assert.Equal(t, "ord-1", snapshot.OutstandingID)
}

func TestZeroQuantitySkipsSignal(t *testing.T) {
	orders := &fakeOrderManager{}
	strategy, err := NewStrategy(context.Background(), Config{
		SizePortfolio: decimal.NewFromInt(100),
	}, testInstrument(), orders, nil)
	require.NoError(t, err)
	strategy.SetChannelData(testChannelData())

	// 1% of 100 over an ATR of 10 floors to zero lots
	require.NoError(t, strategy.OnPrice(context.Background(), tick("105.01")))
	assert.Zero(t, orders.placedCount())
}

func TestCalcQuantityFloors(t *testing.T) {
	pointPrice := decimal.NewFromInt(1)

	assert.Equal(t, int64(2500), calcQuantity(decimal.NewFromInt(500_000), decimal.NewFromInt(2), pointPrice))
	assert.Equal(t, int64(1000), calcQuantity(decimal.NewFromInt(1_000_000), decimal.NewFromInt(10), pointPrice))
	assert.Equal(t, int64(333), calcQuantity(decimal.NewFromInt(100_000), decimal.NewFromInt(3), pointPrice))
	assert.Zero(t, calcQuantity(decimal.NewFromInt(100_000), decimal.Zero, pointPrice))
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	orders := &fakeOrderManager{}
	stateStore := newFakeStateStore()

	strategy, err := NewStrategy(context.Background(), Config{
		SizePortfolio: decimal.NewFromInt(1_000_000),
	}, testInstrument(), orders, stateStore)
	require.NoError(t, err)
	strategy.SetChannelData(testChannelData())

	require.NoError(t, strategy.OnPrice(context.Background(), tick("105.01")))
	strategy.OnOrderEvent(context.Background(), entity.OrderEvent{
		OrderID:    "ord-1",
		Type:       entity.OrderEventFilled,
		FilledLots: 1000,
		AvgPrice:   decimal.NewFromInt(105),
	})

	restartedOrders := &fakeOrderManager{}
	restarted, err := NewStrategy(context.Background(), Config{
		SizePortfolio: decimal.NewFromInt(1_000_000),
	}, testInstrument(), restartedOrders, stateStore)
	require.NoError(t, err)

	snapshot := restarted.Snapshot()
	assert.Equal(t, "in_position", snapshot.State)
	assert.Equal(t, int64(1000), snapshot.Position.Quantity)
}

func TestRestoreOutstandingOrderResumesTracking(t *testing.T) {
	orders := &fakeOrderManager{}
	stateStore := newFakeStateStore()

	req := entity.OrderRequest{
		ClientOrderID: "client-1",
		InstrumentUID: "instrument-1",
		Direction:     entity.OrderDirectionBuy,
		Quantity:      1000,
		Price:         decimal.RequireFromString("100.01"),
		Type:          entity.OrderTypeLimit,
	}

	require.NoError(t, stateStore.Save(context.Background(), DefaultStateKey("TEST"), StateSnapshot{
		State:               "waiting_breakout",
		OutstandingID:       "ord-live",
		Request:             req,
		OutstandingQuantity: 1000,
	}))

	strategy, err := NewStrategy(context.Background(), Config{
		SizePortfolio: decimal.NewFromInt(1_000_000),
	}, testInstrument(), orders, stateStore)
	require.NoError(t, err)

	assert.Equal(t, []string{"ord-live"}, orders.tracked)
	assert.Equal(t, "ord-live", strategy.Snapshot().OutstandingID)
}
