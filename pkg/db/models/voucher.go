package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/enums"
)

// Voucher is a redeemable discount code. Value semantics depend on Type:
// whole percent for percentage vouchers, centavos for fixed and
// refund-credit vouchers, and the free unit count for free-item vouchers.
type Voucher struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID   uuid.UUID         `gorm:"column:organization_id;type:uuid;not null;index"`
	Code             string            `gorm:"column:code;not null;uniqueIndex:idx_vouchers_org_code"`
	Type             enums.VoucherType `gorm:"column:type;type:voucher_type;not null"`
	Value            int64             `gorm:"column:value;not null"`
	MaxDiscountCents *int64            `gorm:"column:max_discount_cents"`
	MinOrderCents    int64             `gorm:"column:min_order_cents;not null;default:0"`
	FreeItemSizeID   *uuid.UUID        `gorm:"column:free_item_size_id;type:uuid"`
	UsageLimit       *int              `gorm:"column:usage_limit"`
	PerCustomerLimit *int              `gorm:"column:per_customer_limit"`
	UsedCount        int               `gorm:"column:used_count;not null;default:0"`
	StartsAt         *time.Time        `gorm:"column:starts_at"`
	ExpiresAt        *time.Time        `gorm:"column:expires_at"`
	Active           bool              `gorm:"column:active;not null;default:true"`
	IssuedToEmail    *string           `gorm:"column:issued_to_email"`
	SourceOrderID    *uuid.UUID        `gorm:"column:source_order_id;type:uuid"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// VoucherUsage records one redemption, keyed by customer identity so
// per-customer limits survive across guest and account checkouts.
type VoucherUsage struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VoucherID     uuid.UUID  `gorm:"column:voucher_id;type:uuid;not null;uniqueIndex:idx_voucher_usages_voucher_order"`
	OrderID       uuid.UUID  `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_voucher_usages_voucher_order"`
	CustomerID    *uuid.UUID `gorm:"column:customer_id;type:uuid"`
	CustomerEmail string     `gorm:"column:customer_email;not null;index"`
	DiscountCents int64      `gorm:"column:discount_cents;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}
