package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

// Payment is one money event recorded against an order, whether it arrived
// through a provider webhook or was keyed in by staff. The composite unique
// index on (order_id, provider, provider_txn_id) is what makes webhook
// replays harmless.
type Payment struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_payments_order_provider_txn"`
	OrganizationID    uuid.UUID                 `gorm:"column:organization_id;type:uuid;not null;index"`
	Provider          enums.PaymentProvider     `gorm:"column:provider;type:payment_provider;not null;uniqueIndex:idx_payments_order_provider_txn"`
	ProviderTxnID     string                    `gorm:"column:provider_txn_id;not null;uniqueIndex:idx_payments_order_provider_txn"`
	CheckoutSessionID *uuid.UUID                `gorm:"column:checkout_session_id;type:uuid;index"`
	AmountCents       int64                     `gorm:"column:amount_cents;not null"`
	FeeCents          int64                     `gorm:"column:fee_cents;not null;default:0"`
	Status            enums.PaymentRecordStatus `gorm:"column:status;type:payment_record_status;not null;default:'pending'"`
	Description       *string                   `gorm:"column:description"`
	RecordedBy        uuid.UUID                 `gorm:"column:recorded_by;type:uuid;not null"`
	Raw               types.JSONMap             `gorm:"column:raw;type:jsonb;serializer:json"`
	VerifiedAt        *time.Time                `gorm:"column:verified_at"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
