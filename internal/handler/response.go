package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/efreitasn/webhookbot/internal/domain"
	"github.com/efreitasn/webhookbot/internal/service"
)

// maxBodyBytes bounds inbound alert bodies.
const maxBodyBytes = 64 << 10

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format. Error carries the
// human-readable text, Code a stable machine-readable identifier.
type errorResponse struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	ExchangeCode *int64 `json:"exchange_code,omitempty"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error: message,
		Code:  errorCode,
	})
}

// ParsePayload reads the request body as a single JSON object. Numbers are
// preserved as json.Number. Malformed bodies yield a *domain.ValidationError.
// The contentTypeJSON middleware has already checked the Content-Type.
func ParsePayload(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		msg := "failed to read request body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, &domain.ValidationError{Kind: domain.MalformedPayload, Message: msg}
	}

	return service.DecodePayload(body)
}
