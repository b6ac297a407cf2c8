package enums

import "fmt"

// NotificationKind names the outbound notification templates the engine schedules.
type NotificationKind string

const (
	NotificationKindOrderReady       NotificationKind = "order_ready"
	NotificationKindOrderDelivered   NotificationKind = "order_delivered"
	NotificationKindPaymentConfirmed NotificationKind = "payment_confirmed"
	NotificationKindPaymentLink      NotificationKind = "payment_link"
	NotificationKindOTPCode          NotificationKind = "otp_code"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindOrderReady,
	NotificationKindOrderDelivered,
	NotificationKindPaymentConfirmed,
	NotificationKindPaymentLink,
	NotificationKindOTPCode,
}

// String implements fmt.Stringer.
func (n NotificationKind) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationKind.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
