package entity

import "time"

type PriceSubscription struct {
	ID            string    `db:"id" json:"id"`
	InstrumentUID string    `db:"instrument_uid" json:"instrument_uid"`
	Interval      string    `db:"interval" json:"interval"`
	Payload       string    `db:"payload" json:"payload"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
