package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

// OrderLog is the append-only activity trail of an order. Unlike the capped
// status history on the order row, nothing is ever evicted here.
type OrderLog struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID            `gorm:"column:organization_id;type:uuid;not null;index"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	Action         enums.OrderLogAction `gorm:"column:action;type:order_log_action;not null"`
	ActorID        uuid.UUID            `gorm:"column:actor_id;type:uuid;not null"`
	ActorRole      enums.ActorRole      `gorm:"column:actor_role;type:actor_role;not null"`
	Message        string               `gorm:"column:message;not null"`
	Details        types.JSONMap        `gorm:"column:details;type:jsonb;serializer:json"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
}
