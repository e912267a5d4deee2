package donchian

import (
	"fmt"

	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/shopspring/decimal"
)

const (
	channelPeriod      = 20
	shortChannelPeriod = 10
)

// ComputeChannelData derives the Donchian bounds and the average true range
// from closed candles ordered oldest first. At least channelPeriod candles are
// required; only the most recent window is used.
func ComputeChannelData(candles []entity.MarketCandle) (entity.ChannelData, error) {
	if len(candles) < channelPeriod {
		return entity.ChannelData{}, fmt.Errorf("need at least %d candles, got %d", channelPeriod, len(candles))
	}

	window := candles[len(candles)-channelPeriod:]
	shortWindow := candles[len(candles)-shortChannelPeriod:]

	longHigh, shortLow := channelBounds(window)
	longHigh10, shortLow10 := channelBounds(shortWindow)

	return entity.ChannelData{
		BreakoutLongHigh:   longHigh,
		BreakoutShortLow:   shortLow,
		BreakoutLongHigh10: longHigh10,
		BreakoutShortLow10: shortLow10,
		AverageTrueRange:   averageTrueRange(candles, channelPeriod),
	}, nil
}

func channelBounds(candles []entity.MarketCandle) (high, low decimal.Decimal) {
	high = candles[0].HighPrice
	low = candles[0].LowPrice

	for _, candle := range candles[1:] {
		if candle.HighPrice.GreaterThan(high) {
			high = candle.HighPrice
		}
		if candle.LowPrice.LessThan(low) {
			low = candle.LowPrice
		}
	}

	return high, low
}

// averageTrueRange is the simple average of the true range over the last
// period candles. The true range widens the high/low span to cover any gap
// from the previous close.
func averageTrueRange(candles []entity.MarketCandle, period int) decimal.Decimal {
	start := len(candles) - period
	sum := decimal.Zero

	for i := start; i < len(candles); i++ {
		trueRange := candles[i].HighPrice.Sub(candles[i].LowPrice)
		if i > 0 {
			previousClose := candles[i-1].ClosePrice
			if gapUp := candles[i].HighPrice.Sub(previousClose); gapUp.GreaterThan(trueRange) {
				trueRange = gapUp
			}
			if gapDown := previousClose.Sub(candles[i].LowPrice); gapDown.GreaterThan(trueRange) {
				trueRange = gapDown
			}
		}
		sum = sum.Add(trueRange)
	}

	return sum.Div(decimal.NewFromInt(int64(period)))
}
