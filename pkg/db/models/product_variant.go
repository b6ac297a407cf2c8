package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/enums"
)

// ProductVariant groups sizes under a product (e.g. a flavor or color).
// Variants without sizes carry their own stock counter; when sizes exist,
// the size counter is the one that gates availability.
type ProductVariant struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	Name          string          `gorm:"column:name;not null"`
	PriceCents    int64           `gorm:"column:price_cents;not null;default:0"`
	StockType     enums.StockType `gorm:"column:stock_type;type:stock_type;not null;default:'STOCK'"`
	StockQuantity int             `gorm:"column:stock_quantity;not null;default:0"`
	Position      int             `gorm:"column:position;not null;default:0"`
	Active        bool            `gorm:"column:active;not null;default:true"`
	Sizes         []VariantSize   `gorm:"foreignKey:VariantID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
