package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

// Notification is a queued outbound message (email today). A nil SentAt
// means the row is still waiting for delivery.
type Notification struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID              `gorm:"column:organization_id;type:uuid;not null;index"`
	Kind           enums.NotificationKind `gorm:"column:kind;type:notification_kind;not null"`
	Recipient      string                 `gorm:"column:recipient;not null"`
	OrderID        *uuid.UUID             `gorm:"column:order_id;type:uuid;index"`
	Payload        types.JSONMap          `gorm:"column:payload;type:jsonb;serializer:json"`
	SentAt         *time.Time             `gorm:"column:sent_at"`
	FailedAt       *time.Time             `gorm:"column:failed_at"`
	LastError      *string                `gorm:"column:last_error"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
