package donchian

import (
	"context"
	"time"

	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const defaultChannelRefreshInterval = time.Minute

// CandleSource feeds closed candles to the channel refresher, ordered oldest
// first.
type CandleSource interface {
	GetRecentClosed(ctx context.Context, instrumentUID, interval string, limit int) ([]entity.MarketCandle, error)
}

// ChannelRefresher periodically recomputes channel bounds from stored candles
// and pushes them into a strategy.
type ChannelRefresher struct {
	source          CandleSource
	refreshInterval time.Duration
	candleInterval  string
}

func NewChannelRefresher(source CandleSource, refreshInterval time.Duration, candleInterval string) *ChannelRefresher {
	if refreshInterval <= 0 {
		refreshInterval = defaultChannelRefreshInterval
	}

	return &ChannelRefresher{
		source:          source,
		refreshInterval: refreshInterval,
		candleInterval:  candleInterval,
	}
}

// Run refreshes once immediately, then on every tick until the context is
// canceled. A failed refresh keeps the previous bounds.
func (r *ChannelRefresher) Run(ctx context.Context, strategy *Strategy) {
	r.refresh(ctx, strategy)

	ticker := time.NewTicker(r.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx, strategy)
		}
	}
}

func (r *ChannelRefresher) refresh(ctx context.Context, strategy *Strategy) {
	// one extra candle so the oldest true range has a previous close
	candles, err := r.source.GetRecentClosed(ctx, strategy.InstrumentUID(), r.candleInterval, channelPeriod+1)
	if err != nil {
		logrus.WithField("instrument_uid", strategy.InstrumentUID()).Warnf("failed to load candles: %v", err)
		return
	}

	data, err := ComputeChannelData(candles)
	if err != nil {
		logrus.WithField("instrument_uid", strategy.InstrumentUID()).Debugf("channel data not ready: %v", err)
		return
	}

	strategy.SetChannelData(data)

	logrus.WithFields(logrus.Fields{
		"instrument_uid": strategy.InstrumentUID(),
		"long_high":      data.BreakoutLongHigh.String(),
		"short_low":      data.BreakoutShortLow.String(),
		"atr":            data.AverageTrueRange.String(),
	}).Debug("channel data refreshed")
}
