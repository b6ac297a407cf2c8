package enums

import "fmt"

// VoucherType describes how a voucher's value converts into a discount.
type VoucherType string

const (
	VoucherTypePercentage   VoucherType = "percentage"
	VoucherTypeFixed        VoucherType = "fixed"
	VoucherTypeFreeShipping VoucherType = "free_shipping"
	VoucherTypeFreeItem     VoucherType = "free_item"
	VoucherTypeRefundCredit VoucherType = "refund_credit"
)

var validVoucherTypes = []VoucherType{
	VoucherTypePercentage,
	VoucherTypeFixed,
	VoucherTypeFreeShipping,
	VoucherTypeFreeItem,
	VoucherTypeRefundCredit,
}

// String implements fmt.Stringer.
func (v VoucherType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known VoucherType.
func (v VoucherType) IsValid() bool {
	for _, candidate := range validVoucherTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVoucherType converts raw input into a VoucherType.
func ParseVoucherType(value string) (VoucherType, error) {
	for _, candidate := range validVoucherTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid voucher type %q", value)
}
