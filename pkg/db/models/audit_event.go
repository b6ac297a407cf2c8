package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

// AuditEvent records operational and security-relevant happenings that are
// not tied to a single order's lifecycle: malformed tokens, signature
// failures, sweeper findings, manual overrides.
type AuditEvent struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID *uuid.UUID          `gorm:"column:organization_id;type:uuid;index"`
	Severity       enums.AuditSeverity `gorm:"column:severity;type:audit_severity;not null;default:'info'"`
	Event          string              `gorm:"column:event;not null;index"`
	ActorID        *uuid.UUID          `gorm:"column:actor_id;type:uuid"`
	SubjectType    *string             `gorm:"column:subject_type"`
	SubjectID      *uuid.UUID          `gorm:"column:subject_id;type:uuid"`
	Details        types.JSONMap       `gorm:"column:details;type:jsonb;serializer:json"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
}
