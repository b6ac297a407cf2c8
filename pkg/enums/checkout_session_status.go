package enums

import "fmt"

// CheckoutSessionStatus is the lifecycle state of a grouped-payment session.
type CheckoutSessionStatus string

const (
	CheckoutSessionStatusPending   CheckoutSessionStatus = "pending"
	CheckoutSessionStatusPaid      CheckoutSessionStatus = "paid"
	CheckoutSessionStatusExpired   CheckoutSessionStatus = "expired"
	CheckoutSessionStatusCancelled CheckoutSessionStatus = "cancelled"
)

var validCheckoutSessionStatuses = []CheckoutSessionStatus{
	CheckoutSessionStatusPending,
	CheckoutSessionStatusPaid,
	CheckoutSessionStatusExpired,
	CheckoutSessionStatusCancelled,
}

// String implements fmt.Stringer.
func (c CheckoutSessionStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CheckoutSessionStatus.
func (c CheckoutSessionStatus) IsValid() bool {
	for _, candidate := range validCheckoutSessionStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session can no longer accept payment.
func (c CheckoutSessionStatus) IsTerminal() bool {
	return c != CheckoutSessionStatusPending
}

// ParseCheckoutSessionStatus converts raw input into a CheckoutSessionStatus.
func ParseCheckoutSessionStatus(value string) (CheckoutSessionStatus, error) {
	for _, candidate := range validCheckoutSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout session status %q", value)
}
