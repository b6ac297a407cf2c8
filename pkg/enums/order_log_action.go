package enums

import "fmt"

// OrderLogAction names entries in the unbounded per-order activity log.
type OrderLogAction string

const (
	OrderLogActionCreated           OrderLogAction = "order_created"
	OrderLogActionStatusChanged     OrderLogAction = "status_changed"
	OrderLogActionPaymentChanged    OrderLogAction = "payment_status_changed"
	OrderLogActionPaymentRecorded   OrderLogAction = "payment_recorded"
	OrderLogActionInvoiceAttached   OrderLogAction = "invoice_attached"
	OrderLogActionVoucherRedeemed   OrderLogAction = "voucher_redeemed"
	OrderLogActionInventoryRestored OrderLogAction = "inventory_restored"
)

var validOrderLogActions = []OrderLogAction{
	OrderLogActionCreated,
	OrderLogActionStatusChanged,
	OrderLogActionPaymentChanged,
	OrderLogActionPaymentRecorded,
	OrderLogActionInvoiceAttached,
	OrderLogActionVoucherRedeemed,
	OrderLogActionInventoryRestored,
}

// String implements fmt.Stringer.
func (o OrderLogAction) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderLogAction.
func (o OrderLogAction) IsValid() bool {
	for _, candidate := range validOrderLogActions {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderLogAction converts raw input into an OrderLogAction.
func ParseOrderLogAction(value string) (OrderLogAction, error) {
	for _, candidate := range validOrderLogActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order log action %q", value)
}
