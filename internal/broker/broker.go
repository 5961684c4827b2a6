// Package broker abstracts order placement and account state behind a
// fixed set of operations. Two implementations exist: PaperBroker, an
// in-memory simulator, and KISBroker, the Korea Investment & Securities
// OpenAPI client. Callers pick one at wiring time; nothing dispatches
// by provider name at runtime.
package broker

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"hsms-trader/internal/domain"
)

var (
	// ErrInsufficientCash is returned when a buy exceeds available cash.
	ErrInsufficientCash = errors.New("insufficient cash")

	// ErrInsufficientPosition is returned when a sell exceeds the held
	// quantity.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrOrderRejected is returned when the provider refuses an order.
	ErrOrderRejected = errors.New("order rejected")

	// ErrOrderNotFound is returned when a status inquiry finds no order
	// with the given ID.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidOrder is returned for structurally invalid requests
	// (zero quantity, bad side, non-positive price).
	ErrInvalidOrder = errors.New("invalid order")
)

// OrderRequest is a limit order for a single symbol. Price is in KRW;
// KRX equities trade at integer prices.
type OrderRequest struct {
	Symbol string
	Side   domain.Side
	Qty    int64
	Price  decimal.Decimal
}

// OrderResult reports acceptance of an order, not its fill.
type OrderResult struct {
	OrderID string
	Message string
}

// OrderStatus is a point-in-time snapshot of one order's execution.
type OrderStatus struct {
	OrderID     string
	Status      string
	OrderedQty  int64
	FilledQty   int64
	UnfilledQty int64
}

// Broker is the provider contract.
type Broker interface {
	// GetCash returns the available cash balance.
	GetCash(ctx context.Context) (decimal.Decimal, error)

	// GetPositions returns held quantity per symbol. Symbols with zero
	// quantity are omitted.
	GetPositions(ctx context.Context) (map[string]int64, error)

	// PlaceOrder submits a limit order and returns the provider's
	// order ID on acceptance.
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	// GetOrderStatus looks up one order by ID. A single inquiry, not a
	// polling loop.
	GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
}

func validateRequest(req OrderRequest) error {
	if req.Symbol == "" {
		return errors.New("empty symbol")
	}
	if !req.Side.IsValid() {
		return errors.New("side must be BUY or SELL")
	}
	if req.Qty <= 0 {
		return errors.New("quantity must be positive")
	}
	if req.Price.Sign() <= 0 {
		return errors.New("price must be positive")
	}
	return nil
}
