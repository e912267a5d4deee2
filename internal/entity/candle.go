package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type MarketCandleEvent struct {
	RetryCount int          `json:"retry"`
	Data       MarketCandle `json:"data"`
}

type MarketCandle struct {
	InstrumentUID string          `db:"instrument_uid"`
	Interval      string          `db:"interval"`
	OpenTime      time.Time       `db:"open_time"`
	CloseTime     time.Time       `db:"close_time"`
	OpenPrice     decimal.Decimal `db:"open_price"`
	HighPrice     decimal.Decimal `db:"high_price"`
	LowPrice      decimal.Decimal `db:"low_price"`
	ClosePrice    decimal.Decimal `db:"close_price"`
	Volume        decimal.Decimal `db:"volume"`
	IsClosed      bool            `db:"is_closed"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (m MarketCandle) TableName() string {
	return "market_candles"
}
