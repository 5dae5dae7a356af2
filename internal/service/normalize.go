package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/webhookbot/internal/domain"
)

// DefaultMaxQtyDecimals is the finest quantity step accepted from alerts.
const DefaultMaxQtyDecimals = 8

const maxQtyExponent = 64

// Shape identifies which alert-source convention a payload follows.
type Shape int

const (
	// ShapeSide is {"symbol", "side", "qty"}.
	ShapeSide Shape = iota + 1
	// ShapeAction is {"symbol", "action", "qty"}.
	ShapeAction
)

func (s Shape) String() string {
	switch s {
	case ShapeSide:
		return "side"
	case ShapeAction:
		return "action"
	}
	return "unknown"
}

// Payload is an inbound alert resolved to one accepted shape. A nil field
// means the key was absent.
type Payload struct {
	Shape  Shape
	Symbol any
	Side   any
	Qty    any
}

var allowedKeys = map[string]bool{
	"symbol": true,
	"side":   true,
	"action": true,
	"qty":    true,
}

// ResolvePayload classifies raw into a Payload. Unknown keys and payloads
// carrying both side and action are malformed.
func ResolvePayload(raw map[string]any) (Payload, error) {
	if raw == nil {
		return Payload{}, malformed("payload must be a JSON object")
	}
	for k := range raw {
		if !allowedKeys[k] {
			return Payload{}, malformed(fmt.Sprintf("unexpected field %q", k))
		}
	}

	side, hasSide := raw["side"]
	action, hasAction := raw["action"]
	p := Payload{Symbol: raw["symbol"], Qty: raw["qty"]}
	switch {
	case hasSide && hasAction:
		return Payload{}, malformed("payload must carry either side or action, not both")
	case hasAction:
		p.Shape = ShapeAction
		p.Side = action
	default:
		p.Shape = ShapeSide
		p.Side = side
	}
	return p, nil
}

// sideField is the key a payload of this shape takes its side from.
func (p Payload) sideField() string {
	if p.Shape == ShapeAction {
		return "action"
	}
	return "side"
}

// DecodePayload decodes a webhook body into a raw key-value map. Numbers are
// kept as json.Number so that quantities never pass through float64.
func DecodePayload(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed("invalid JSON body")
	}
	if dec.More() {
		return nil, malformed("request body must contain a single JSON object")
	}
	if raw == nil {
		return nil, malformed("payload must be a JSON object")
	}
	return raw, nil
}

// Normalizer validates and canonicalizes inbound alerts. The zero value
// uses DefaultMaxQtyDecimals.
type Normalizer struct {
	MaxQtyDecimals int
}

// NewNormalizer creates a Normalizer accepting at most maxDecimals
// fractional quantity digits.
func NewNormalizer(maxDecimals int) Normalizer {
	return Normalizer{MaxQtyDecimals: maxDecimals}
}

// Normalize turns an untyped payload into an OrderIntent, or returns a
// *domain.ValidationError. It has no side effects.
func (n Normalizer) Normalize(raw map[string]any) (domain.OrderIntent, error) {
	p, err := ResolvePayload(raw)
	if err != nil {
		return domain.OrderIntent{}, err
	}

	symbol, err := normalizeSymbol(p.Symbol)
	if err != nil {
		return domain.OrderIntent{}, err
	}
	side, err := normalizeSide(p.sideField(), p.Side)
	if err != nil {
		return domain.OrderIntent{}, err
	}
	qty, err := n.normalizeQty(p.Qty)
	if err != nil {
		return domain.OrderIntent{}, err
	}

	return domain.NewOrderIntent(symbol, side, qty)
}

func normalizeSymbol(v any) (string, error) {
	if v == nil {
		return "", &domain.ValidationError{Kind: domain.MissingField, Field: "symbol", Message: "symbol is required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &domain.ValidationError{Kind: domain.InvalidSymbol, Field: "symbol", Message: "symbol must be a string"}
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", &domain.ValidationError{Kind: domain.MissingField, Field: "symbol", Message: "symbol is required"}
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", &domain.ValidationError{Kind: domain.InvalidSymbol, Field: "symbol", Message: "symbol must be alphanumeric"}
		}
	}
	return s, nil
}

func normalizeSide(field string, v any) (domain.Side, error) {
	if v == nil {
		return "", &domain.ValidationError{Kind: domain.MissingField, Field: "side", Message: "side or action is required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &domain.ValidationError{Kind: domain.InvalidSide, Field: field, Message: field + " must be BUY or SELL"}
	}
	side, ok := domain.ParseSide(strings.ToUpper(strings.TrimSpace(s)))
	if !ok {
		return "", &domain.ValidationError{Kind: domain.InvalidSide, Field: field, Message: fmt.Sprintf("%s must be BUY or SELL, got %q", field, s)}
	}
	return side, nil
}

func (n Normalizer) normalizeQty(v any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch q := v.(type) {
	case nil:
		return decimal.Decimal{}, invalidQty("qty is required")
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(q))
	case json.Number:
		d, err = decimal.NewFromString(q.String())
	case float64:
		d = decimal.NewFromFloat(q)
	case int:
		d = decimal.NewFromInt(int64(q))
	case int64:
		d = decimal.NewFromInt(q)
	default:
		return decimal.Decimal{}, invalidQty("qty must be a number or numeric string")
	}
	if err != nil {
		return decimal.Decimal{}, invalidQty("qty must be a number or numeric string")
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, invalidQty("qty must be a positive number")
	}
	// Bounds String() below; exponents like 1e-1000000 would otherwise expand.
	if exp := d.Exponent(); exp < -maxQtyExponent || exp > maxQtyExponent {
		return decimal.Decimal{}, invalidQty("qty is out of range")
	}

	maxDecimals := n.MaxQtyDecimals
	if maxDecimals <= 0 {
		maxDecimals = DefaultMaxQtyDecimals
	}
	if fractionDigits(d) > maxDecimals {
		return decimal.Decimal{}, invalidQty(fmt.Sprintf("qty must have at most %d decimal places", maxDecimals))
	}
	return d, nil
}

// fractionDigits counts significant digits after the decimal point.
func fractionDigits(d decimal.Decimal) int {
	s := d.String()
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}

func invalidQty(msg string) error {
	return &domain.ValidationError{Kind: domain.InvalidQuantity, Field: "qty", Message: msg}
}

func malformed(msg string) error {
	return &domain.ValidationError{Kind: domain.MalformedPayload, Message: msg}
}
