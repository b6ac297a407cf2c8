package chatflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
)

// Repository persists conversational order sessions and the catalog and
// customer lookups the dialogue needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.ChatOrderSession) error
	Save(ctx context.Context, session *models.ChatOrderSession) error
	FindActive(ctx context.Context, organizationID uuid.UUID, channelUserID string) (*models.ChatOrderSession, error)
	DeactivatePrior(ctx context.Context, organizationID uuid.UUID, channelUserID string, now time.Time) (int64, error)
	LastVerifiedEmail(ctx context.Context, organizationID uuid.UUID, channelUserID string) (*string, error)
	ProductWithVariants(ctx context.Context, organizationID, productID uuid.UUID) (*models.Product, error)
	UserByEmail(ctx context.Context, organizationID uuid.UUID, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	CloseIdle(ctx context.Context, now time.Time, idleTimeout time.Duration) (int64, error)
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a chatflow repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.ChatOrderSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) Save(ctx context.Context, session *models.ChatOrderSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *repository) FindActive(ctx context.Context, organizationID uuid.UUID, channelUserID string) (*models.ChatOrderSession, error) {
	var session models.ChatOrderSession
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND channel_user_id = ? AND step NOT IN ?",
			organizationID, channelUserID,
			[]enums.ChatStep{enums.ChatStepCompleted, enums.ChatStepCancelled}).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// DeactivatePrior cancels any live session for the conversation. A new
// product trigger always supersedes the dialogue in progress.
func (r *repository) DeactivatePrior(ctx context.Context, organizationID uuid.UUID, channelUserID string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ChatOrderSession{}).
		Where("organization_id = ? AND channel_user_id = ? AND step NOT IN ?",
			organizationID, channelUserID,
			[]enums.ChatStep{enums.ChatStepCompleted, enums.ChatStepCancelled}).
		Updates(map[string]any{
			"step":          enums.ChatStepCancelled,
			"cancel_reason": "superseded by new order",
			"updated_at":    now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// LastVerifiedEmail returns the most recently verified email for this chat
// contact, letting returning customers skip the OTP round.
func (r *repository) LastVerifiedEmail(ctx context.Context, organizationID uuid.UUID, channelUserID string) (*string, error) {
	var session models.ChatOrderSession
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND channel_user_id = ? AND email_verified = ? AND email IS NOT NULL",
			organizationID, channelUserID, true).
		Order("updated_at DESC").
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return session.Email, nil
}

func (r *repository) ProductWithVariants(ctx context.Context, organizationID, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", "active = ?", true).
		Preload("Variants.Sizes", "active = ?", true).
		Where("id = ? AND organization_id = ? AND active = ? AND deleted_at IS NULL",
			productID, organizationID, true).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) UserByEmail(ctx context.Context, organizationID uuid.UUID, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND LOWER(email) = ? AND deleted_at IS NULL",
			organizationID, strings.ToLower(email)).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repository) CloseIdle(ctx context.Context, now time.Time, idleTimeout time.Duration) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ChatOrderSession{}).
		Where("step NOT IN ? AND last_activity_at <= ?",
			[]enums.ChatStep{enums.ChatStepCompleted, enums.ChatStepCancelled},
			now.Add(-idleTimeout)).
		Updates(map[string]any{
			"step":          enums.ChatStepCancelled,
			"cancel_reason": "idle timeout",
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repository) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ChatOrderSession{}).
		Where("step NOT IN ? AND expires_at <= ?",
			[]enums.ChatStep{enums.ChatStepCompleted, enums.ChatStepCancelled}, now).
		Updates(map[string]any{
			"step":          enums.ChatStepCancelled,
			"cancel_reason": "session expired",
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
