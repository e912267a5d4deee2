package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceTick struct {
	InstrumentUID string          `json:"instrument_uid"`
	Price         decimal.Decimal `json:"price"`
	Time          time.Time       `json:"time"`
}

type PriceTickEvent struct {
	RetryCount int       `json:"retry"`
	Data       PriceTick `json:"data"`
}
