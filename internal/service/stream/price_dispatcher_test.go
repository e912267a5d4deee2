package stream

import (
	"context"
	"errors"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPriceHandler struct {
	mu    sync.Mutex
	ticks []entity.PriceTick
	err   error
}

func (h *recordingPriceHandler) OnPrice(ctx context.Context, tick entity.PriceTick) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ticks = append(h.ticks, tick)
	return h.err
}

func priceTickMsg(t *testing.T, instrumentUID, price string) *nats.Msg {
	t.Helper()

	data, err := json.Marshal(entity.PriceTickEvent{
		Data: entity.PriceTick{
			InstrumentUID: instrumentUID,
			Price:         decimal.RequireFromString(price),
		},
	})
	require.NoError(t, err)

	return &nats.Msg{Data: data}
}

func TestHandlePriceTickRoutesToRegisteredHandler(t *testing.T) {
	dispatcher := NewPriceDispatcher(nil)
	handler := &recordingPriceHandler{}
	dispatcher.Register("instrument-1", handler)

	err := dispatcher.handlePriceTickEvent(context.Background(), priceTickMsg(t, "instrument-1", "100.5"))
	require.NoError(t, err)

	require.Len(t, handler.ticks, 1)
	assert.Equal(t, "instrument-1", handler.ticks[0].InstrumentUID)
	assert.True(t, handler.ticks[0].Price.Equal(decimal.RequireFromString("100.5")))
}

func TestHandlePriceTickDropsUnknownInstrument(t *testing.T) {
	dispatcher := NewPriceDispatcher(nil)
	handler := &recordingPriceHandler{}
	dispatcher.Register("instrument-1", handler)

	err := dispatcher.handlePriceTickEvent(context.Background(), priceTickMsg(t, "instrument-2", "100"))
	require.NoError(t, err)
	assert.Empty(t, handler.ticks)
}

func TestHandlePriceTickPropagatesHandlerError(t *testing.T) {
	dispatcher := NewPriceDispatcher(nil)
	handler := &recordingPriceHandler{err: errors.New("boom")}
	dispatcher.Register("instrument-1", handler)

	err := dispatcher.handlePriceTickEvent(context.Background(), priceTickMsg(t, "instrument-1", "100"))
	require.Error(t, err)
}

func TestHandlePriceTickRejectsMalformedPayload(t *testing.T) {
	dispatcher := NewPriceDispatcher(nil)

	err := dispatcher.handlePriceTickEvent(context.Background(), &nats.Msg{Data: []byte("not json")})
	require.Error(t, err)
}
