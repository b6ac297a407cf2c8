package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Phone          *string         `json:"phone,omitempty"`
	Role           enums.ActorRole `json:"role"`
	LastLoginAt    *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	OrganizationID uuid.UUID
	Email          string
	PasswordHash   string
	Name           string
	Phone          *string
	Role           enums.ActorRole
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:             u.ID,
		OrganizationID: u.OrganizationID,
		Email:          u.Email,
		Name:           u.Name,
		Phone:          u.Phone,
		Role:           u.Role,
		LastLoginAt:    u.LastLoginAt,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if role == "" {
		role = enums.ActorRoleCustomer
	}
	return &models.User{
		ID:             uuid.New(),
		OrganizationID: c.OrganizationID,
		Email:          c.Email,
		PasswordHash:   c.PasswordHash,
		Name:           c.Name,
		Phone:          c.Phone,
		Role:           role,
	}
}
