package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/efreitasn/webhookbot/internal/domain"
)

func TestWriteJSON(t *testing.T) {
	t.Run("sets content type and status code", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]string{"status": "ok"}

		WriteJSON(w, http.StatusOK, data)

		if got := w.Header().Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want %q", got, "application/json")
		}
		if w.Code != http.StatusOK {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
		}

		var result map[string]string
		if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if result["status"] != "ok" {
			t.Errorf("body status = %q, want %q", result["status"], "ok")
		}
	})

	t.Run("omits empty order id", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, signalResponse{Message: duplicateMessage})

		var raw map[string]any
		if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if _, ok := raw["order_id"]; ok {
			t.Errorf("expected order_id to be omitted, got %v", raw)
		}
	})
}

func TestWriteError(t *testing.T) {
	t.Run("writes standard error format", func(t *testing.T) {
		w := httptest.NewRecorder()

		WriteError(w, http.StatusBadRequest, "invalid_side", "side must be BUY or SELL")

		if w.Code != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if got := w.Header().Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want %q", got, "application/json")
		}

		var raw map[string]any
		if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if raw["error"] != "side must be BUY or SELL" {
			t.Errorf("error = %v, want the human-readable message", raw["error"])
		}
		if raw["code"] != "invalid_side" {
			t.Errorf("code = %v, want %q", raw["code"], "invalid_side")
		}
		if _, ok := raw["exchange_code"]; ok {
			t.Error("expected exchange_code to be omitted")
		}
	})

	t.Run("writes 500 error", func(t *testing.T) {
		w := httptest.NewRecorder()

		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})
}

func TestParsePayload(t *testing.T) {
	t.Run("decodes valid JSON with correct content type", func(t *testing.T) {
		body := `{"symbol":"BTCUSDT","qty":0.01}`
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")

		raw, err := ParsePayload(httptest.NewRecorder(), r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if raw["symbol"] != "BTCUSDT" {
			t.Errorf("symbol = %v, want BTCUSDT", raw["symbol"])
		}
		if n, ok := raw["qty"].(json.Number); !ok || n.String() != "0.01" {
			t.Errorf("qty = %#v, want json.Number 0.01", raw["qty"])
		}
	})

	t.Run("accepts content type with charset", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"symbol":"A"}`))
		r.Header.Set("Content-Type", "application/json; charset=utf-8")

		if _, err := ParsePayload(httptest.NewRecorder(), r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{invalid json}`))
		r.Header.Set("Content-Type", "application/json")

		_, err := ParsePayload(httptest.NewRecorder(), r)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || verr.Kind != domain.MalformedPayload {
			t.Fatalf("expected MalformedPayload, got %v", err)
		}
	})

	t.Run("rejects empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		r.Header.Set("Content-Type", "application/json")

		if _, err := ParsePayload(httptest.NewRecorder(), r); err == nil {
			t.Fatal("expected error for empty body")
		}
	})
}

func TestMapSignalError(t *testing.T) {
	tests := []struct {
		name       string
		res        domain.OrderResult
		err        error
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{
			name:       "validation",
			err:        &domain.ValidationError{Kind: domain.InvalidSide, Message: "side must be BUY or SELL"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_side",
			wantError:  "side must be BUY or SELL",
		},
		{
			name:       "rejection",
			err:        &domain.ExchangeRejection{Code: 10001, Message: "insufficient balance"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "exchange_rejected",
			wantError:  "insufficient balance",
		},
		{
			name:       "transport with result message",
			res:        domain.OrderResult{Message: "invalid response from exchange"},
			err:        &domain.TransportError{Op: "post order", Sent: true, Err: errors.New("dial tcp: refused")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "transport_error",
			wantError:  "invalid response from exchange",
		},
		{
			name:       "transport without result message",
			err:        &domain.TransportError{Op: "post order", Err: errors.New("x")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "transport_error",
			wantError:  "exchange request failed",
		},
		{
			name:       "ledger unavailable",
			err:        domain.ErrLedgerUnavailable,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "ledger_unavailable",
			wantError:  "Internal server error",
		},
		{
			name:       "unexpected",
			err:        errors.New("secret-looking internal detail"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
			wantError:  "Internal server error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mapSignalError(w, tt.res, tt.err)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
			if resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
		})
	}
}

func TestMapSignalError_Duplicate(t *testing.T) {
	w := httptest.NewRecorder()
	mapSignalError(w, domain.OrderResult{}, domain.ErrDuplicateSignal)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp signalResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Message != duplicateMessage {
		t.Errorf("message = %q, want %q", resp.Message, duplicateMessage)
	}
}
