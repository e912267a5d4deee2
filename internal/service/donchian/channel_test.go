package donchian

import (
	"testing"
	"time"

	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candle(open, high, low, close string) entity.MarketCandle {
	return entity.MarketCandle{
		InstrumentUID: "instrument-1",
		Interval:      "1m",
		OpenTime:      time.Now(),
		OpenPrice:     decimal.RequireFromString(open),
		HighPrice:     decimal.RequireFromString(high),
		LowPrice:      decimal.RequireFromString(low),
		ClosePrice:    decimal.RequireFromString(close),
		IsClosed:      true,
	}
}

// flatCandles builds count identical candles so the channel math is easy to
// verify by hand.
func flatCandles(count int, open, high, low, close string) []entity.MarketCandle {
	candles := make([]entity.MarketCandle, 0, count)
	for i := 0; i < count; i++ {
		candles = append(candles, candle(open, high, low, close))
	}
	return candles
}

func TestComputeChannelDataRequiresFullWindow(t *testing.T) {
	_, err := ComputeChannelData(flatCandles(channelPeriod-1, "100", "101", "99", "100"))
	require.Error(t, err)

	_, err = ComputeChannelData(nil)
	require.Error(t, err)
}

func TestComputeChannelDataFlatSeries(t *testing.T) {
	data, err := ComputeChannelData(flatCandles(channelPeriod, "100", "102", "98", "100"))
	require.NoError(t, err)

	assert.True(t, data.BreakoutLongHigh.Equal(decimal.NewFromInt(102)))
	assert.True(t, data.BreakoutShortLow.Equal(decimal.NewFromInt(98)))
	assert.True(t, data.BreakoutLongHigh10.Equal(decimal.NewFromInt(102)))
	assert.True(t, data.BreakoutShortLow10.Equal(decimal.NewFromInt(98)))
	// every true range is high - low = 4
	assert.True(t, data.AverageTrueRange.Equal(decimal.NewFromInt(4)), "got %s", data.AverageTrueRange)
}

func TestChannelBoundsPickExtremes(t *testing.T) {
	candles := []entity.MarketCandle{
		candle("100", "104", "97", "101"),
		candle("101", "110", "99", "108"),
		candle("108", "109", "95", "96"),
	}

	high, low := channelBounds(candles)
	assert.True(t, high.Equal(decimal.NewFromInt(110)))
	assert.True(t, low.Equal(decimal.NewFromInt(95)))
}

func TestShortWindowTracksRecentExtremes(t *testing.T) {
	// an old spike stays in the 20-candle channel but ages out of the
	// 10-candle one
	candles := flatCandles(channelPeriod, "100", "102", "98", "100")
	candles[2] = candle("100", "120", "80", "100")

	data, err := ComputeChannelData(candles)
	require.NoError(t, err)

	assert.True(t, data.BreakoutLongHigh.Equal(decimal.NewFromInt(120)))
	assert.True(t, data.BreakoutShortLow.Equal(decimal.NewFromInt(80)))
	assert.True(t, data.BreakoutLongHigh10.Equal(decimal.NewFromInt(102)))
	assert.True(t, data.BreakoutShortLow10.Equal(decimal.NewFromInt(98)))
}

func TestAverageTrueRangeCoversGaps(t *testing.T) {
	// three candles, ATR over the last two; the gap down on the second
	// candle widens its true range to the previous close
	candles := []entity.MarketCandle{
		candle("100", "101", "99", "100"),
		candle("90", "92", "88", "90"), // TR = 100 - 88 = 12
		candle("90", "93", "89", "92"), // TR = 93 - 89 = 4
	}

	atr := averageTrueRange(candles, 2)
	assert.True(t, atr.Equal(decimal.NewFromInt(8)), "got %s", atr)
}

func TestAverageTrueRangeUsesExtraCandleForFirstGap(t *testing.T) {
	// the refresher fetches channelPeriod+1 candles so the oldest window
	// entry still sees a previous close
	candles := append([]entity.MarketCandle{candle("100", "101", "99", "100")},
		flatCandles(channelPeriod, "110", "112", "108", "110")...)

	atr := averageTrueRange(candles, channelPeriod)
	// first window candle TR = 112 - 100 = 12, the other 19 are 4
	want := decimal.NewFromInt(12 + 19*4).Div(decimal.NewFromInt(channelPeriod))
	assert.True(t, atr.Equal(want), "got %s want %s", atr, want)
}
