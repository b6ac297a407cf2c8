package enums

import "fmt"

// PaymentRecordStatus is the lifecycle state of an individual payment record.
type PaymentRecordStatus string

const (
	PaymentRecordStatusPending       PaymentRecordStatus = "pending"
	PaymentRecordStatusProcessing    PaymentRecordStatus = "processing"
	PaymentRecordStatusVerified      PaymentRecordStatus = "verified"
	PaymentRecordStatusDeclined      PaymentRecordStatus = "declined"
	PaymentRecordStatusFailed        PaymentRecordStatus = "failed"
	PaymentRecordStatusRefundPending PaymentRecordStatus = "refund_pending"
	PaymentRecordStatusRefunded      PaymentRecordStatus = "refunded"
	PaymentRecordStatusCancelled     PaymentRecordStatus = "cancelled"
)

var validPaymentRecordStatuses = []PaymentRecordStatus{
	PaymentRecordStatusPending,
	PaymentRecordStatusProcessing,
	PaymentRecordStatusVerified,
	PaymentRecordStatusDeclined,
	PaymentRecordStatusFailed,
	PaymentRecordStatusRefundPending,
	PaymentRecordStatusRefunded,
	PaymentRecordStatusCancelled,
}

// String implements fmt.Stringer.
func (p PaymentRecordStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentRecordStatus.
func (p PaymentRecordStatus) IsValid() bool {
	for _, candidate := range validPaymentRecordStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentRecordStatus converts raw input into a PaymentRecordStatus.
func ParsePaymentRecordStatus(value string) (PaymentRecordStatus, error) {
	for _, candidate := range validPaymentRecordStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment record status %q", value)
}
