package enums

import "fmt"

// PaymentStatus tracks how much of an order's balance has been settled.
type PaymentStatus string

const (
	PaymentStatusPending     PaymentStatus = "PENDING"
	PaymentStatusDownpayment PaymentStatus = "DOWNPAYMENT"
	PaymentStatusPaid        PaymentStatus = "PAID"
	PaymentStatusRefunded    PaymentStatus = "REFUNDED"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusDownpayment,
	PaymentStatusPaid,
	PaymentStatusRefunded,
}

// paymentStatusTransitions lists the allowed next statuses per current status.
// REFUNDED is reachable from any settled state and is terminal: a refunded
// order can never flip back to PAID.
var paymentStatusTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:     {PaymentStatusDownpayment, PaymentStatusPaid},
	PaymentStatusDownpayment: {PaymentStatusPaid, PaymentStatusRefunded},
	PaymentStatusPaid:        {PaymentStatusRefunded},
	PaymentStatusRefunded:    {},
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the payment status graph allows moving to next.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, candidate := range paymentStatusTransitions[p] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
