package entity

import (
	"context"

	"github.com/shopspring/decimal"
)

type OrderDirection string
type OrderType string
type TimeInForce string
type PriceType string

const (
	OrderDirectionBuy  OrderDirection = "BUY"
	OrderDirectionSell OrderDirection = "SELL"

	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"

	TimeInForceDay TimeInForce = "DAY"

	PriceTypePoint PriceType = "POINT"
)

// OrderRequest is immutable once submitted. A replacement is always a new
// request with a fresh ClientOrderID.
type OrderRequest struct {
	ClientOrderID string          `json:"client_order_id"`
	InstrumentUID string          `json:"instrument_uid"`
	Direction     OrderDirection  `json:"direction"`
	Quantity      int64           `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Type          OrderType       `json:"type"`
	TimeInForce   TimeInForce     `json:"time_in_force"`
	PriceType     PriceType       `json:"price_type"`
	Source        string          `json:"source"`
}

type OrderEventType string

const (
	OrderEventUnknown  OrderEventType = "UNKNOWN"
	OrderEventNew      OrderEventType = "NEW"
	OrderEventPartial  OrderEventType = "PARTIAL"
	OrderEventFilled   OrderEventType = "FILLED"
	OrderEventCanceled OrderEventType = "CANCELED"
	OrderEventRejected OrderEventType = "REJECTED"
)

func (t OrderEventType) IsTerminal() bool {
	switch t {
	case OrderEventFilled, OrderEventCanceled, OrderEventRejected:
		return true
	default:
		return false
	}
}

// OrderEvent is derived from a single OrderState snapshot. FilledLots is the
// cumulative executed quantity reported by the venue.
type OrderEvent struct {
	OrderID    string          `json:"order_id"`
	Type       OrderEventType  `json:"type"`
	FilledLots int64           `json:"filled_lots"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
}

type OrderListener interface {
	OnOrderEvent(ctx context.Context, event OrderEvent)
}

type OrderReportStatus string

const (
	OrderReportStatusUnspecified   OrderReportStatus = "UNSPECIFIED"
	OrderReportStatusNew           OrderReportStatus = "NEW"
	OrderReportStatusPartiallyFill OrderReportStatus = "PARTIALLY_FILL"
	OrderReportStatusFill          OrderReportStatus = "FILL"
	OrderReportStatusCancelled     OrderReportStatus = "CANCELLED"
	OrderReportStatusRejected      OrderReportStatus = "REJECTED"
)

// OrderState is the broker's status snapshot for a single order.
type OrderState struct {
	OrderID      string
	ReportStatus OrderReportStatus
	FilledLots   int64
	AvgPrice     decimal.Decimal
}

type PlaceOrderResponse struct {
	OrderID string
}
