package entity

import (
	"context"
	"errors"
	"fmt"
)

// BrokerGateway is the remote trading venue boundary. Every method may fail
// with a *TransportError when the venue is unreachable or returns a
// transport-level failure.
type BrokerGateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (PlaceOrderResponse, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderState, error)
	CancelOrder(ctx context.Context, orderID string) error
}

type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("broker transport failure: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func NewTransportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
