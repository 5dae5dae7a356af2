package domain

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Kind: InvalidSide, Field: "side", Message: "side must be BUY or SELL"}
	if err.Error() != "side must be BUY or SELL" {
		t.Errorf("Error() = %q, want %q", err.Error(), "side must be BUY or SELL")
	}
}

func TestValidationError_As(t *testing.T) {
	var err error = &ValidationError{Kind: MissingField, Field: "symbol", Message: "symbol is required"}
	wrapped := errors.Join(errors.New("normalize"), err)

	var ve *ValidationError
	if !errors.As(wrapped, &ve) {
		t.Fatal("errors.As should find ValidationError")
	}
	if ve.Kind != MissingField {
		t.Errorf("Kind = %q, want %q", ve.Kind, MissingField)
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	err := &TransportError{Op: "post order", Sent: true, Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("TransportError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "post order") {
		t.Errorf("Error() = %q, want op prefix", err.Error())
	}
}

func TestExchangeRejection_Error(t *testing.T) {
	err := &ExchangeRejection{Code: 10001, Message: "insufficient balance"}
	want := "exchange rejected order [10001]: insufficient balance"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAuthConfigError_NamesKey(t *testing.T) {
	err := &AuthConfigError{Key: "BYBIT_SECRET_KEY"}
	if !strings.HasPrefix(err.Error(), "BYBIT_SECRET_KEY is required") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	if errors.Is(ErrDuplicateSignal, ErrLedgerUnavailable) {
		t.Error("sentinel errors should be distinct")
	}
}
