package broker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"hsms-trader/internal/domain"
)

func krw(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestPaperBroker_BuyAndSell(t *testing.T) {
	b := NewPaperBroker(krw(10_000_000))
	ctx := context.Background()

	res, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol: "005930", Side: domain.SideBuy, Qty: 100, Price: krw(70_000),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.OrderID)

	cash, err := b.GetCash(ctx)
	require.NoError(t, err)
	require.True(t, cash.Equal(krw(3_000_000)), "cash = %s", cash)

	pos, err := b.GetPositions(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(100), pos["005930"])

	_, err = b.PlaceOrder(ctx, OrderRequest{
		Symbol: "005930", Side: domain.SideSell, Qty: 100, Price: krw(71_000),
	})
	require.NoError(t, err)

	cash, err = b.GetCash(ctx)
	require.NoError(t, err)
	require.True(t, cash.Equal(krw(10_100_000)), "cash = %s", cash)

	// Full exit drops the symbol from the position map.
	pos, err = b.GetPositions(ctx)
	require.NoError(t, err)
	require.NotContains(t, pos, "005930")
}

func TestPaperBroker_InsufficientCash(t *testing.T) {
	b := NewPaperBroker(krw(1_000))
	_, err := b.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "005930", Side: domain.SideBuy, Qty: 1, Price: krw(70_000),
	})
	require.ErrorIs(t, err, ErrInsufficientCash)

	// A failed order must not touch the ledger.
	cash, _ := b.GetCash(context.Background())
	require.True(t, cash.Equal(krw(1_000)))
}

func TestPaperBroker_InsufficientPosition(t *testing.T) {
	b := NewPaperBroker(krw(10_000_000))
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol: "005930", Side: domain.SideSell, Qty: 1, Price: krw(70_000),
	})
	require.ErrorIs(t, err, ErrInsufficientPosition)

	_, err = b.PlaceOrder(ctx, OrderRequest{
		Symbol: "005930", Side: domain.SideBuy, Qty: 10, Price: krw(70_000),
	})
	require.NoError(t, err)

	_, err = b.PlaceOrder(ctx, OrderRequest{
		Symbol: "005930", Side: domain.SideSell, Qty: 11, Price: krw(70_000),
	})
	require.ErrorIs(t, err, ErrInsufficientPosition)
}

func TestPaperBroker_PartialSellKeepsRemainder(t *testing.T) {
	b := NewPaperBroker(krw(10_000_000))
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol: "005930", Side: domain.SideBuy, Qty: 10, Price: krw(10_000),
	})
	require.NoError(t, err)
	_, err = b.PlaceOrder(ctx, OrderRequest{
		Symbol: "005930", Side: domain.SideSell, Qty: 4, Price: krw(10_000),
	})
	require.NoError(t, err)

	pos, err := b.GetPositions(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(6), pos["005930"])
}

func TestPaperBroker_InvalidRequests(t *testing.T) {
	b := NewPaperBroker(krw(10_000_000))
	ctx := context.Background()

	cases := []OrderRequest{
		{Symbol: "", Side: domain.SideBuy, Qty: 1, Price: krw(100)},
		{Symbol: "005930", Side: "HOLD", Qty: 1, Price: krw(100)},
		{Symbol: "005930", Side: domain.SideBuy, Qty: 0, Price: krw(100)},
		{Symbol: "005930", Side: domain.SideBuy, Qty: 1, Price: krw(0)},
	}
	for _, req := range cases {
		_, err := b.PlaceOrder(ctx, req)
		require.ErrorIs(t, err, ErrInvalidOrder, "req=%+v", req)
	}
}

func TestPaperBroker_OrderStatus(t *testing.T) {
	b := NewPaperBroker(krw(10_000_000))
	ctx := context.Background()

	res, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol: "005930", Side: domain.SideBuy, Qty: 42, Price: krw(10_000),
	})
	require.NoError(t, err)

	st, err := b.GetOrderStatus(ctx, res.OrderID)
	require.NoError(t, err)
	require.Equal(t, "FILLED", st.Status)
	require.Equal(t, int64(42), st.FilledQty)
	require.Zero(t, st.UnfilledQty)

	_, err = b.GetOrderStatus(ctx, "PB-99999999")
	require.ErrorIs(t, err, ErrOrderNotFound)
}
