package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog root. Sellable units live on VariantSize; the
// product row carries shared display data only.
type Product struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID        `gorm:"column:organization_id;type:uuid;not null;index"`
	Name           string           `gorm:"column:name;not null"`
	Description    *string          `gorm:"column:description"`
	Category       *string          `gorm:"column:category"`
	Active         bool             `gorm:"column:active;not null;default:true"`
	Variants       []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt      *time.Time       `gorm:"column:deleted_at;index"`
}
