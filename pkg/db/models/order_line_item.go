package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

// OrderLineItem is the overflow storage for orders too large to embed
// their item snapshots inline. The columns mirror the snapshot shape.
type OrderLineItem struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID         uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID         *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	SizeID            *uuid.UUID `gorm:"column:size_id;type:uuid"`
	Name              string     `gorm:"column:name;not null"`
	Quantity          int        `gorm:"column:quantity;not null"`
	UnitPriceCents    int64      `gorm:"column:unit_price_cents;not null"`
	CatalogPriceCents int64      `gorm:"column:catalog_price_cents;not null"`
	Note              *string    `gorm:"column:note"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Snapshot converts the row back into the embedded snapshot shape.
func (li *OrderLineItem) Snapshot() types.OrderItemSnapshot {
	return types.OrderItemSnapshot{
		ProductID:         li.ProductID,
		VariantID:         li.VariantID,
		SizeID:            li.SizeID,
		Name:              li.Name,
		Quantity:          li.Quantity,
		UnitPriceCents:    li.UnitPriceCents,
		CatalogPriceCents: li.CatalogPriceCents,
		Note:              li.Note,
	}
}
