package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Category is the exchange product line an order is placed on.
type Category string

// CategorySpot is the only category the relay trades.
const CategorySpot Category = "spot"

// OrderType distinguishes order execution styles. Only market orders exist here.
type OrderType string

// OrderTypeMarket fills immediately at the best available price.
const OrderTypeMarket OrderType = "market"

// Side indicates whether an order buys or sells the base asset.
type Side string

// Order sides as sent on the wire.
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide resolves an already upper-cased side string.
func ParseSide(s string) (Side, bool) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), true
	}
	return "", false
}

// OrderIntent is the validated, canonical form of a requested trade.
// Quantity holds the canonical decimal string that ends up on the wire.
type OrderIntent struct {
	Symbol    string
	Side      Side
	Quantity  string
	Category  Category
	OrderType OrderType
}

// NewOrderIntent builds a spot market intent. It re-checks every field so that
// no caller can produce an intent with an empty or non-positive component.
func NewOrderIntent(symbol string, side Side, quantity decimal.Decimal) (OrderIntent, error) {
	if symbol == "" {
		return OrderIntent{}, &ValidationError{Kind: MissingField, Field: "symbol", Message: "symbol is required"}
	}
	if _, ok := ParseSide(string(side)); !ok {
		return OrderIntent{}, &ValidationError{Kind: InvalidSide, Field: "side", Message: fmt.Sprintf("side must be BUY or SELL, got %q", side)}
	}
	if !quantity.IsPositive() {
		return OrderIntent{}, &ValidationError{Kind: InvalidQuantity, Field: "qty", Message: "qty must be a positive number"}
	}
	return OrderIntent{
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity.String(),
		Category:  CategorySpot,
		OrderType: OrderTypeMarket,
	}, nil
}

// Fingerprint returns the idempotency key of the intent.
func (o OrderIntent) Fingerprint() Fingerprint {
	return Fingerprint{Symbol: o.Symbol, Side: o.Side, Quantity: o.Quantity}
}

func (o OrderIntent) String() string {
	return fmt.Sprintf("%s %s %s", o.Side, o.Quantity, o.Symbol)
}

// Fingerprint identifies a logical signal for duplicate detection.
type Fingerprint struct {
	Symbol   string
	Side     Side
	Quantity string
}

// Key renders the fingerprint as a stable ledger key.
func (f Fingerprint) Key() string {
	return f.Symbol + ":" + string(f.Side) + ":" + f.Quantity
}
