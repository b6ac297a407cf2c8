package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

// ChatOrderSession tracks one conversational ordering dialogue. The draft
// columns accumulate the customer's picks step by step; once the order is
// created the session carries only the pointer to it.
type ChatOrderSession struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID                 `gorm:"column:organization_id;type:uuid;not null;index"`
	ProductID      uuid.UUID                 `gorm:"column:product_id;type:uuid;not null"`
	ChannelUserID  string                    `gorm:"column:channel_user_id;not null;index"`
	Step           enums.ChatStep            `gorm:"column:step;type:chat_step;not null;default:'VARIANT_SELECTION'"`
	DraftVariantID *uuid.UUID                `gorm:"column:draft_variant_id;type:uuid"`
	DraftSizeID    *uuid.UUID                `gorm:"column:draft_size_id;type:uuid"`
	DraftQuantity  int                       `gorm:"column:draft_quantity;not null;default:0"`
	DraftNote      *string                   `gorm:"column:draft_note"`
	DraftItems     []types.OrderItemSnapshot `gorm:"column:draft_items;type:jsonb;serializer:json"`
	Email          *string                   `gorm:"column:email"`
	EmailVerified  bool                      `gorm:"column:email_verified;not null;default:false"`
	OTPAttempts    int                       `gorm:"column:otp_attempts;not null;default:0"`
	OrderID        *uuid.UUID                `gorm:"column:order_id;type:uuid"`
	CancelReason   *string                   `gorm:"column:cancel_reason"`
	LastActivityAt time.Time                 `gorm:"column:last_activity_at;not null;index"`
	ExpiresAt      time.Time                 `gorm:"column:expires_at;not null;index"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

// Idle reports whether the session has gone quiet past the given timeout.
func (s *ChatOrderSession) Idle(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivityAt) >= timeout
}
