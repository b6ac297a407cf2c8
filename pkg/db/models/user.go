package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/enums"
)

// User is a registered account scoped to an organization. Guests checking
// out without an account never get a User row; their email lives on the
// checkout session instead.
type User struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID       `gorm:"column:organization_id;type:uuid;not null;index"`
	Email          string          `gorm:"column:email;not null;uniqueIndex:idx_users_org_email"`
	Name           string          `gorm:"column:name;not null"`
	Phone          *string         `gorm:"column:phone"`
	Role           enums.ActorRole `gorm:"column:role;type:actor_role;not null;default:'customer'"`
	PasswordHash   string          `gorm:"column:password_hash;not null"`
	LastLoginAt    *time.Time      `gorm:"column:last_login_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt      *time.Time      `gorm:"column:deleted_at;index"`
}
