package types

import (
	"time"

	"github.com/google/uuid"
)

// JSONMap is a free-form JSONB payload.
type JSONMap map[string]any

// OrderItemSnapshot is the embedded line-item form used for small orders.
// Larger orders store line items as child rows instead.
type OrderItemSnapshot struct {
	ProductID         uuid.UUID  `json:"product_id"`
	VariantID         *uuid.UUID `json:"variant_id,omitempty"`
	SizeID            *uuid.UUID `json:"size_id,omitempty"`
	Name              string     `json:"name"`
	Quantity          int        `json:"quantity"`
	UnitPriceCents    int64      `json:"unit_price_cents"`
	CatalogPriceCents int64      `json:"catalog_price_cents"`
	Note              *string    `json:"note,omitempty"`
}

// StatusHistoryEntry is one element of the capped recent-activity history
// kept on the order row. The unbounded record lives in the order log.
type StatusHistoryEntry struct {
	ActorID   uuid.UUID `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	Field     string    `json:"field"`
	Previous  string    `json:"previous"`
	Next      string    `json:"next"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// VoucherSnapshot freezes the voucher terms applied to an order at creation
// time so later voucher edits cannot change historical orders.
type VoucherSnapshot struct {
	VoucherID        uuid.UUID `json:"voucher_id"`
	Code             string    `json:"code"`
	Type             string    `json:"type"`
	Value            int64     `json:"value"`
	MaxDiscountCents *int64    `json:"max_discount_cents,omitempty"`
	DiscountCents    int64     `json:"discount_cents"`
}
