package notify

import (
	"fmt"

	"hsms-trader/internal/domain"
)

// FormatSignal renders a strategy signal alert.
func FormatSignal(symbol, strategyName string, side domain.Side, price float64) string {
	return fmt.Sprintf(
		"[SIGNAL]\n- symbol: %s\n- strategy: %s\n- signal: %s\n- price: %.0f",
		symbol, strategyName, side, price)
}

// FormatOrder renders an order submission result.
func FormatOrder(symbol string, side domain.Side, qty int64, price float64, orderID string) string {
	return fmt.Sprintf(
		"[ORDER]\n- symbol: %s\n- side: %s\n- qty: %d\n- price: %.0f\n- order_id: %s",
		symbol, side, qty, price, orderID)
}

// FormatError renders a pipeline failure alert.
func FormatError(symbol, stage, message string) string {
	return fmt.Sprintf(
		"[ERROR]\n- symbol: %s\n- stage: %s\n- message: %s",
		symbol, stage, message)
}
