package handler

import (
	"errors"
	"net/http"

	"github.com/efreitasn/webhookbot/internal/domain"
	"github.com/efreitasn/webhookbot/internal/service"
)

// SignalHandler handles HTTP requests for the alert webhook.
type SignalHandler struct {
	signalSvc *service.SignalService
}

// NewSignalHandler creates a new SignalHandler.
func NewSignalHandler(signalSvc *service.SignalService) *SignalHandler {
	return &SignalHandler{signalSvc: signalSvc}
}

// signalResponse is the JSON response for an accepted or duplicate signal.
type signalResponse struct {
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

const duplicateMessage = "duplicate signal ignored"

// Receive handles POST /webhook.
func (h *SignalHandler) Receive(w http.ResponseWriter, r *http.Request) {
	raw, err := ParsePayload(w, r)
	if err != nil {
		mapSignalError(w, domain.OrderResult{}, err)
		return
	}

	out, err := h.signalSvc.Handle(r.Context(), raw)
	if err != nil {
		mapSignalError(w, out.Result, err)
		return
	}

	WriteJSON(w, http.StatusOK, signalResponse{
		Message: out.Result.Message,
		OrderID: out.Result.OrderID,
	})
}

// mapSignalError maps domain errors to HTTP responses for the webhook endpoint.
// Only exchange-provided text and validation messages reach the caller.
func mapSignalError(w http.ResponseWriter, res domain.OrderResult, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, string(validationErr.Kind), validationErr.Message)
		return
	}

	var rejection *domain.ExchangeRejection
	if errors.As(err, &rejection) {
		code := rejection.Code
		WriteJSON(w, http.StatusBadRequest, errorResponse{
			Error:        rejection.Message,
			Code:         "exchange_rejected",
			ExchangeCode: &code,
		})
		return
	}

	var transportErr *domain.TransportError
	switch {
	case errors.Is(err, domain.ErrDuplicateSignal):
		WriteJSON(w, http.StatusOK, signalResponse{Message: duplicateMessage})
	case errors.As(err, &transportErr):
		msg := res.Message
		if msg == "" {
			msg = "exchange request failed"
		}
		WriteError(w, http.StatusInternalServerError, "transport_error", msg)
	case errors.Is(err, domain.ErrLedgerUnavailable):
		WriteError(w, http.StatusInternalServerError, "ledger_unavailable", "Internal server error")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
