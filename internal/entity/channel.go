package entity

import "github.com/shopspring/decimal"

// ChannelData holds the rolling Donchian channel bounds and the average true
// range for one instrument. The 10-period bounds are not used by the entry
// logic but drive position exits.
type ChannelData struct {
	BreakoutLongHigh   decimal.Decimal `json:"breakout_long_high"`
	BreakoutShortLow   decimal.Decimal `json:"breakout_short_low"`
	BreakoutLongHigh10 decimal.Decimal `json:"breakout_long_high_10"`
	BreakoutShortLow10 decimal.Decimal `json:"breakout_short_low_10"`
	AverageTrueRange   decimal.Decimal `json:"average_true_range"`
}
