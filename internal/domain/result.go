package domain

// OrderStatus is the caller-facing outcome class of a submission.
type OrderStatus string

const (
	OrderStatusSuccess        OrderStatus = "SUCCESS"
	OrderStatusRejected       OrderStatus = "REJECTED"
	OrderStatusTransportError OrderStatus = "TRANSPORT_ERROR"
)

// OrderResult is the interpreted outcome of one logical order submission.
// ExchangeCode is nil when the exchange response carried no result code
// or no response was received at all.
type OrderResult struct {
	Status       OrderStatus
	ExchangeCode *int64
	Message      string
	OrderID      string
	Attempts     int
}

// Code returns the exchange result code, or 0 and false when absent.
func (r OrderResult) Code() (int64, bool) {
	if r.ExchangeCode == nil {
		return 0, false
	}
	return *r.ExchangeCode, true
}
