package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"hsms-trader/internal/domain"
)

// PaperBroker simulates a brokerage account in memory. Every accepted
// order fills immediately and fully at its limit price. Cash is kept
// as a decimal so repeated debits and credits never drift.
type PaperBroker struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]int64
	orders    map[string]OrderStatus
	orderSeq  int
}

// Compile-time interface check.
var _ Broker = (*PaperBroker)(nil)

// NewPaperBroker creates a paper account with the given starting cash.
func NewPaperBroker(initialCash decimal.Decimal) *PaperBroker {
	return &PaperBroker{
		cash:      initialCash,
		positions: make(map[string]int64),
		orders:    make(map[string]OrderStatus),
	}
}

// GetCash returns the current cash balance.
func (b *PaperBroker) GetCash(_ context.Context) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash, nil
}

// GetPositions returns a copy of the held quantities.
func (b *PaperBroker) GetPositions(_ context.Context) (map[string]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]int64, len(b.positions))
	for sym, qty := range b.positions {
		out[sym] = qty
	}
	return out, nil
}

// PlaceOrder debits or credits the ledger at the limit price.
func (b *PaperBroker) PlaceOrder(_ context.Context, req OrderRequest) (OrderResult, error) {
	if err := validateRequest(req); err != nil {
		return OrderResult{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	notional := req.Price.Mul(decimal.NewFromInt(req.Qty))

	switch req.Side {
	case domain.SideBuy:
		if b.cash.LessThan(notional) {
			return OrderResult{}, fmt.Errorf("need %s, have %s: %w",
				notional.StringFixed(0), b.cash.StringFixed(0), ErrInsufficientCash)
		}
		b.cash = b.cash.Sub(notional)
		b.positions[req.Symbol] += req.Qty

	case domain.SideSell:
		held := b.positions[req.Symbol]
		if held < req.Qty {
			return OrderResult{}, fmt.Errorf("have %d, sell %d: %w",
				held, req.Qty, ErrInsufficientPosition)
		}
		b.cash = b.cash.Add(notional)
		if held == req.Qty {
			delete(b.positions, req.Symbol)
		} else {
			b.positions[req.Symbol] = held - req.Qty
		}
	}

	b.orderSeq++
	id := fmt.Sprintf("PB-%08d", b.orderSeq)
	b.orders[id] = OrderStatus{
		OrderID:     id,
		Status:      "FILLED",
		OrderedQty:  req.Qty,
		FilledQty:   req.Qty,
		UnfilledQty: 0,
	}

	return OrderResult{
		OrderID: id,
		Message: fmt.Sprintf("filled (paper) side=%s qty=%d price=%s", req.Side, req.Qty, req.Price.StringFixed(0)),
	}, nil
}

// GetOrderStatus looks up an order placed through this broker.
func (b *PaperBroker) GetOrderStatus(_ context.Context, orderID string) (OrderStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.orders[orderID]
	if !ok {
		return OrderStatus{}, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
	}
	return st, nil
}
