package exchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/efreitasn/webhookbot/internal/domain"
)

// ErrInvalidResponse marks a response body that is not a JSON object.
var ErrInvalidResponse = errors.New("invalid response from exchange")

// apiResponse is the exchange response envelope shared by v5 and spot v3.
type apiResponse struct {
	RetCode *int64          `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type orderResult struct {
	OrderID string `json:"orderId"`
}

const successMessage = "Trade placed successfully"

// parseResponse interprets a received response. It never fails on content:
// every outcome maps to a result plus, for non-success, a typed error.
func parseResponse(status int, body []byte) (domain.OrderResult, error) {
	trimmed := bytes.TrimSpace(body)
	if !bytes.HasPrefix(trimmed, []byte("{")) {
		return invalidResponse("decode response", nil, fmt.Errorf("%w: HTTP %d, non-JSON body", ErrInvalidResponse, status))
	}

	var resp apiResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return invalidResponse("decode response", nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}

	if resp.RetCode != nil && *resp.RetCode != 0 {
		msg := resp.RetMsg
		if msg == "" {
			msg = "exchange API error"
		}
		return domain.OrderResult{
			Status:       domain.OrderStatusRejected,
			ExchangeCode: resp.RetCode,
			Message:      msg,
		}, &domain.ExchangeRejection{Code: *resp.RetCode, Message: msg}
	}

	if status < 200 || status > 299 {
		return invalidResponse("post order", resp.RetCode, fmt.Errorf("%w: unexpected HTTP status %d", ErrInvalidResponse, status))
	}

	var result orderResult
	if len(resp.Result) > 0 {
		// result shape varies between endpoints; an unexpected shape only loses the order id.
		_ = json.Unmarshal(resp.Result, &result)
	}

	return domain.OrderResult{
		Status:       domain.OrderStatusSuccess,
		ExchangeCode: resp.RetCode,
		Message:      successMessage,
		OrderID:      result.OrderID,
	}, nil
}

// invalidResponse reports a response that arrived but cannot be interpreted.
// The request was sent, so the failure is never retried.
func invalidResponse(op string, code *int64, err error) (domain.OrderResult, error) {
	return domain.OrderResult{
		Status:       domain.OrderStatusTransportError,
		ExchangeCode: code,
		Message:      ErrInvalidResponse.Error(),
	}, &domain.TransportError{Op: op, Sent: true, Err: err}
}
