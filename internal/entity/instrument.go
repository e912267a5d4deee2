package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is immutable once loaded from the instruments table.
type Instrument struct {
	UID                     string          `db:"uid" json:"uid"`
	Ticker                  string          `db:"ticker" json:"ticker"`
	MinPriceIncrement       decimal.Decimal `db:"min_price_increment" json:"min_price_increment"`
	MinPriceIncrementAmount decimal.Decimal `db:"min_price_increment_amount" json:"min_price_increment_amount"`
	Lot                     int64           `db:"lot" json:"lot"`
	CreatedAt               time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at" json:"updated_at"`
}

// PointPrice is the monetary value of one full price point: the value of the
// minimum increment scaled up to a whole point.
func (i Instrument) PointPrice() decimal.Decimal {
	if i.MinPriceIncrement.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Div(i.MinPriceIncrement).Mul(i.MinPriceIncrementAmount)
}
