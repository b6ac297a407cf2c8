package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
)

// Repository exposes persistence helpers for checkout sessions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.CheckoutSession) error
	FindByToken(ctx context.Context, token string) (*models.CheckoutSession, error)
	StampOrders(ctx context.Context, orderIDs []uuid.UUID, sessionID uuid.UUID) error
	ClaimIntent(ctx context.Context, sessionID uuid.UUID, now time.Time) (bool, error)
	RecordIntent(ctx context.Context, sessionID uuid.UUID, provider enums.PaymentProvider, invoiceID, invoiceURL string) error
	MarkPaid(ctx context.Context, sessionID uuid.UUID, now time.Time) (bool, error)
	MarkCancelled(ctx context.Context, sessionID uuid.UUID, now time.Time) (bool, error)
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
	FlagStuckIntents(ctx context.Context, cutoff, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.CheckoutSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) FindByToken(ctx context.Context, token string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) StampOrders(ctx context.Context, orderIDs []uuid.UUID, sessionID uuid.UUID) error {
	if len(orderIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ?", orderIDs).
		UpdateColumn("session_id", sessionID).Error
}

// ClaimIntent wins the right to mint the provider invoice. The guarded
// update makes the claim at-most-once: only the transition none -> claimed
// reports a win.
func (r *repository) ClaimIntent(ctx context.Context, sessionID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND intent_state = ?", sessionID, enums.InvoiceIntentStateNone).
		Updates(map[string]any{
			"intent_state":      enums.InvoiceIntentStateClaimed,
			"intent_claimed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) RecordIntent(ctx context.Context, sessionID uuid.UUID, provider enums.PaymentProvider, invoiceID, invoiceURL string) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND intent_state = ?", sessionID, enums.InvoiceIntentStateClaimed).
		Updates(map[string]any{
			"intent_state": enums.InvoiceIntentStateRecorded,
			"provider":     provider,
			"invoice_id":   invoiceID,
			"invoice_url":  invoiceURL,
		}).Error
}

func (r *repository) MarkPaid(ctx context.Context, sessionID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", sessionID, enums.CheckoutSessionStatusPending).
		Updates(map[string]any{
			"status":  enums.CheckoutSessionStatusPaid,
			"paid_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkCancelled(ctx context.Context, sessionID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", sessionID, enums.CheckoutSessionStatusPending).
		Updates(map[string]any{
			"status":       enums.CheckoutSessionStatusCancelled,
			"cancelled_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("status = ? AND expires_at <= ?", enums.CheckoutSessionStatusPending, now).
		UpdateColumn("status", enums.CheckoutSessionStatusExpired)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// FlagStuckIntents marks sessions whose invoice claim never advanced to
// recorded. Flagged rows surface in monitoring; the claim itself is left
// untouched for manual inspection.
func (r *repository) FlagStuckIntents(ctx context.Context, cutoff, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("intent_state = ? AND intent_claimed_at <= ? AND stuck_flagged_at IS NULL",
			enums.InvoiceIntentStateClaimed, cutoff).
		UpdateColumn("stuck_flagged_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
