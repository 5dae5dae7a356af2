package exchange

import (
	"errors"
	"net/http"
	"testing"

	"github.com/efreitasn/webhookbot/internal/domain"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus domain.OrderStatus
		wantCode   *int64
		wantMsg    string
		wantOrder  string
	}{
		{
			name:       "success with order id",
			status:     http.StatusOK,
			body:       `{"retCode":0,"retMsg":"OK","result":{"orderId":"1321003749386327552","orderLinkId":""}}`,
			wantStatus: domain.OrderStatusSuccess,
			wantCode:   ptr(0),
			wantMsg:    successMessage,
			wantOrder:  "1321003749386327552",
		},
		{
			name:       "success without code field",
			status:     http.StatusOK,
			body:       `{"result":{}}`,
			wantStatus: domain.OrderStatusSuccess,
			wantMsg:    successMessage,
		},
		{
			name:       "success with unexpected result shape",
			status:     http.StatusOK,
			body:       `{"retCode":0,"result":[]}`,
			wantStatus: domain.OrderStatusSuccess,
			wantCode:   ptr(0),
			wantMsg:    successMessage,
		},
		{
			name:       "rejection surfaces message verbatim",
			status:     http.StatusOK,
			body:       `{"retCode": 10001, "retMsg": "insufficient balance"}`,
			wantStatus: domain.OrderStatusRejected,
			wantCode:   ptr(10001),
			wantMsg:    "insufficient balance",
		},
		{
			name:       "rejection without message",
			status:     http.StatusOK,
			body:       `{"retCode":170131}`,
			wantStatus: domain.OrderStatusRejected,
			wantCode:   ptr(170131),
			wantMsg:    "exchange API error",
		},
		{
			name:       "rejection on non-2xx keeps exchange code",
			status:     http.StatusForbidden,
			body:       `{"retCode":10003,"retMsg":"API key is invalid."}`,
			wantStatus: domain.OrderStatusRejected,
			wantCode:   ptr(10003),
			wantMsg:    "API key is invalid.",
		},
		{
			name:       "html error page",
			status:     http.StatusBadGateway,
			body:       `<html><body>502 Bad Gateway</body></html>`,
			wantStatus: domain.OrderStatusTransportError,
			wantMsg:    ErrInvalidResponse.Error(),
		},
		{
			name:       "empty body",
			status:     http.StatusOK,
			body:       ``,
			wantStatus: domain.OrderStatusTransportError,
			wantMsg:    ErrInvalidResponse.Error(),
		},
		{
			name:       "truncated json",
			status:     http.StatusOK,
			body:       `{"retCode":0,`,
			wantStatus: domain.OrderStatusTransportError,
			wantMsg:    ErrInvalidResponse.Error(),
		},
		{
			name:       "non-2xx without code",
			status:     http.StatusInternalServerError,
			body:       `{"error":"boom"}`,
			wantStatus: domain.OrderStatusTransportError,
			wantMsg:    ErrInvalidResponse.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseResponse(tt.status, []byte(tt.body))
			if res.Status != tt.wantStatus {
				t.Fatalf("Status = %s, want %s (err=%v)", res.Status, tt.wantStatus, err)
			}
			if res.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", res.Message, tt.wantMsg)
			}
			if res.OrderID != tt.wantOrder {
				t.Errorf("OrderID = %q, want %q", res.OrderID, tt.wantOrder)
			}
			gotCode, gotOK := res.Code()
			if tt.wantCode == nil {
				if gotOK {
					t.Errorf("ExchangeCode = %d, want absent", gotCode)
				}
			} else if !gotOK || gotCode != *tt.wantCode {
				t.Errorf("ExchangeCode = %d (present=%v), want %d", gotCode, gotOK, *tt.wantCode)
			}

			switch tt.wantStatus {
			case domain.OrderStatusSuccess:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			case domain.OrderStatusRejected:
				var rej *domain.ExchangeRejection
				if !errors.As(err, &rej) {
					t.Fatalf("expected ExchangeRejection, got %v", err)
				}
				if rej.Message != tt.wantMsg {
					t.Errorf("rejection message = %q, want %q", rej.Message, tt.wantMsg)
				}
			case domain.OrderStatusTransportError:
				var terr *domain.TransportError
				if !errors.As(err, &terr) {
					t.Fatalf("expected TransportError, got %v", err)
				}
				if !terr.Sent {
					t.Error("a received response means the request was sent")
				}
				if !errors.Is(err, ErrInvalidResponse) {
					t.Errorf("expected ErrInvalidResponse in chain, got %v", err)
				}
			}
		})
	}
}

func ptr(v int64) *int64 { return &v }
