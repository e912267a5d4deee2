package status

import (
	"net/http"
	"sort"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/krobus00/donchian-service/internal/service/donchian"
	"github.com/sirupsen/logrus"
)

type StrategyView interface {
	InstrumentUID() string
	Snapshot() donchian.StateSnapshot
}

type OrderTracker interface {
	TrackedOrders() []string
}

// Handler exposes read-only operational state: per ticker strategy snapshots
// and the order ids currently tracked by the order manager.
type Handler struct {
	orders OrderTracker

	mu         sync.RWMutex
	strategies map[string]StrategyView
}

func NewHandler(orders OrderTracker) *Handler {
	return &Handler{
		orders:     orders,
		strategies: make(map[string]StrategyView),
	}
}

func (h *Handler) RegisterStrategy(ticker string, strategy StrategyView) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.strategies[ticker] = strategy
}

func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("/strategies", h.handleStrategies)
	mux.HandleFunc("/orders", h.handleOrders)

	return mux
}

type strategyStatus struct {
	Ticker        string                 `json:"ticker"`
	InstrumentUID string                 `json:"instrument_uid"`
	Snapshot      donchian.StateSnapshot `json:"snapshot"`
}

func (h *Handler) handleStrategies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	h.mu.RLock()
	tickers := make([]string, 0, len(h.strategies))
	for ticker := range h.strategies {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	statuses := make([]strategyStatus, 0, len(tickers))
	for _, ticker := range tickers {
		strategy := h.strategies[ticker]
		statuses = append(statuses, strategyStatus{
			Ticker:        ticker,
			InstrumentUID: strategy.InstrumentUID(),
			Snapshot:      strategy.Snapshot(),
		})
	}
	h.mu.RUnlock()

	writeJSON(w, statuses)
}

func (h *Handler) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]any{
		"tracked_orders": h.orders.TrackedOrders(),
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Errorf("failed to encode status response: %v", err)
	}
}
