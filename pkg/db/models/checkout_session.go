package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/migueldlcruz/tindago-backend/pkg/db/types"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
)

// CheckoutSession is the payment window over one or more orders paid
// together. The token is the only handle customers ever see; the invoice
// intent columns implement the claim-then-record protocol that keeps
// provider invoice minting at-most-once per session.
type CheckoutSession struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID  uuid.UUID                   `gorm:"column:organization_id;type:uuid;not null;index"`
	CustomerID      *uuid.UUID                  `gorm:"column:customer_id;type:uuid;index"`
	MemberOrderIDs  dbtypes.UUIDArray           `gorm:"column:member_order_ids;type:uuid[];not null"`
	Token           string                      `gorm:"column:token;not null;uniqueIndex"`
	Status          enums.CheckoutSessionStatus `gorm:"column:status;type:checkout_session_status;not null;default:'pending'"`
	AmountCents     int64                       `gorm:"column:amount_cents;not null"`
	GuestEmail      *string                     `gorm:"column:guest_email"`
	IntentState     enums.InvoiceIntentState    `gorm:"column:intent_state;type:invoice_intent_state;not null;default:'none'"`
	IntentClaimedAt *time.Time                  `gorm:"column:intent_claimed_at"`
	StuckFlaggedAt  *time.Time                  `gorm:"column:stuck_flagged_at"`
	Provider        *enums.PaymentProvider      `gorm:"column:provider;type:payment_provider"`
	InvoiceID       *string                     `gorm:"column:invoice_id"`
	InvoiceURL      *string                     `gorm:"column:invoice_url"`
	ExpiresAt       time.Time                   `gorm:"column:expires_at;not null;index"`
	PaidAt          *time.Time                  `gorm:"column:paid_at"`
	CancelledAt     *time.Time                  `gorm:"column:cancelled_at"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

// Expired reports whether the session's payment window has closed.
func (s *CheckoutSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
