package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/enums"
)

// VariantSize is the sellable unit: it carries the catalog price and, for
// tracked stock, the on-hand quantity that reservations decrement.
type VariantSize struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VariantID     uuid.UUID       `gorm:"column:variant_id;type:uuid;not null;index"`
	Name          string          `gorm:"column:name;not null"`
	PriceCents    int64           `gorm:"column:price_cents;not null"`
	StockType     enums.StockType `gorm:"column:stock_type;type:stock_type;not null;default:'STOCK'"`
	StockQuantity int             `gorm:"column:stock_quantity;not null;default:0"`
	Position      int             `gorm:"column:position;not null;default:0"`
	Active        bool            `gorm:"column:active;not null;default:true"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
