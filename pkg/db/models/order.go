package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

// Order is the aggregate root of the whole engine. Small orders embed their
// line-item snapshots in the Items JSONB column; orders above the embed
// limit keep Items empty and hang child OrderLineItem rows instead. The
// StatusHistory column holds only the most recent transitions; the full
// trail lives in order_logs.
type Order struct {
	ID             uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID                  `gorm:"column:organization_id;type:uuid;not null;index"`
	OrderNumber    int64                      `gorm:"column:order_number;not null;uniqueIndex:idx_orders_org_number"`
	Channel        enums.OrderChannel         `gorm:"column:channel;type:order_channel;not null;default:'web'"`
	CustomerID     *uuid.UUID                 `gorm:"column:customer_id;type:uuid;index"`
	CustomerName   string                     `gorm:"column:customer_name;not null"`
	CustomerEmail  *string                    `gorm:"column:customer_email"`
	CustomerPhone  *string                    `gorm:"column:customer_phone"`
	Status         enums.OrderStatus          `gorm:"column:status;type:order_status;not null;default:'PENDING'"`
	PaymentStatus  enums.PaymentStatus        `gorm:"column:payment_status;type:payment_status;not null;default:'PENDING'"`
	SubtotalCents  int64                      `gorm:"column:subtotal_cents;not null"`
	DiscountCents  int64                      `gorm:"column:discount_cents;not null;default:0"`
	ShippingCents  int64                      `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents     int64                      `gorm:"column:total_cents;not null"`
	PaidCents      int64                      `gorm:"column:paid_cents;not null;default:0"`
	Voucher        *types.VoucherSnapshot     `gorm:"column:voucher;type:jsonb;serializer:json"`
	Items          []types.OrderItemSnapshot  `gorm:"column:items;type:jsonb;serializer:json"`
	ItemCount      int                        `gorm:"column:item_count;not null"`
	StatusHistory  []types.StatusHistoryEntry `gorm:"column:status_history;type:jsonb;serializer:json"`
	Note           *string                    `gorm:"column:note"`
	CancelReason   *string                    `gorm:"column:cancel_reason"`
	SessionID      *uuid.UUID                 `gorm:"column:session_id;type:uuid;index"`
	InvoiceID      *string                    `gorm:"column:invoice_id"`
	InvoiceURL     *string                    `gorm:"column:invoice_url"`
	LineItems      []OrderLineItem            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments       []Payment                  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	ReadyAt        *time.Time                 `gorm:"column:ready_at"`
	DeliveredAt    *time.Time                 `gorm:"column:delivered_at"`
	CancelledAt    *time.Time                 `gorm:"column:cancelled_at"`
	PaidAt         *time.Time                 `gorm:"column:paid_at"`
	DeletedAt      *time.Time                 `gorm:"column:deleted_at;index"`
	CreatedAt      time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// Embedded reports whether the order stores its items inline rather than
// as child rows.
func (o *Order) Embedded() bool {
	return len(o.Items) > 0
}

// Snapshots returns the item snapshots regardless of storage shape.
func (o *Order) Snapshots() []types.OrderItemSnapshot {
	if o.Embedded() {
		return o.Items
	}
	out := make([]types.OrderItemSnapshot, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		out = append(out, li.Snapshot())
	}
	return out
}

// BalanceCents is the amount still owed on the order.
func (o *Order) BalanceCents() int64 {
	if o.TotalCents < o.PaidCents {
		return 0
	}
	return o.TotalCents - o.PaidCents
}
