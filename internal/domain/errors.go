package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrDuplicateSignal   = errors.New("duplicate_signal")
	ErrLedgerUnavailable = errors.New("ledger_unavailable")
)

// ValidationKind classifies why an inbound signal was refused.
type ValidationKind string

const (
	MissingField     ValidationKind = "missing_field"
	InvalidSide      ValidationKind = "invalid_side"
	InvalidQuantity  ValidationKind = "invalid_quantity"
	InvalidSymbol    ValidationKind = "invalid_symbol"
	MalformedPayload ValidationKind = "malformed_payload"
)

// ValidationError represents a request validation failure. It is always the
// caller's fault and is never retried.
type ValidationError struct {
	Kind    ValidationKind
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AuthConfigError reports missing exchange credentials. It is fatal at startup.
type AuthConfigError struct {
	Key string
}

func (e *AuthConfigError) Error() string {
	return e.Key + " is required (set via environment variable, .env or config file)"
}

// TransportError is a failure to obtain a usable exchange response.
// Sent reports whether any request reached the wire; when false the
// exchange cannot have seen the order.
type TransportError struct {
	Op   string
	Sent bool
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExchangeRejection is a well-formed exchange response with a non-zero result
// code. Message is the exchange's own text. EarlierAttemptSent is set when a
// previous attempt of the same submission may have reached the exchange, in
// which case the rejection does not prove that no order exists.
type ExchangeRejection struct {
	Code               int64
	Message            string
	EarlierAttemptSent bool
}

func (e *ExchangeRejection) Error() string {
	return fmt.Sprintf("exchange rejected order [%d]: %s", e.Code, e.Message)
}
