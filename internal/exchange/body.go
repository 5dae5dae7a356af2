package exchange

import (
	"encoding/json"
	"fmt"

	"github.com/efreitasn/webhookbot/internal/domain"
)

// orderBody is the canonical v5 order payload. Field order is alphabetical
// and encoding/json emits struct fields in declaration order, so the encoded
// bytes are identical for identical intents.
type orderBody struct {
	Category  domain.Category  `json:"category"`
	OrderType domain.OrderType `json:"orderType"`
	Qty       string           `json:"qty"`
	Side      domain.Side      `json:"side"`
	Symbol    string           `json:"symbol"`
}

// CanonicalBody serializes an intent into the exact bytes that are both
// signed and transmitted.
func CanonicalBody(intent domain.OrderIntent) ([]byte, error) {
	b, err := json.Marshal(orderBody{
		Category:  intent.Category,
		OrderType: intent.OrderType,
		Qty:       intent.Quantity,
		Side:      intent.Side,
		Symbol:    intent.Symbol,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order body: %w", err)
	}
	return b, nil
}

// orderParams returns the order fields as a flat map, used by the
// query-string signing scheme.
func orderParams(intent domain.OrderIntent) map[string]string {
	return map[string]string{
		"category":  string(intent.Category),
		"orderType": string(intent.OrderType),
		"qty":       intent.Quantity,
		"side":      string(intent.Side),
		"symbol":    intent.Symbol,
	}
}
