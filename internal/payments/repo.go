package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
)

// Repository persists payment records and resolves webhook references back
// to orders and sessions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePayment(ctx context.Context, payment *models.Payment) error
	PaymentExists(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider, txnID string) (bool, error)
	OrdersByNumber(ctx context.Context, number int64) ([]models.Order, error)
	OrdersByNumbers(ctx context.Context, numbers []int64) ([]models.Order, error)
	SessionByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	PaymentsByOrder(ctx context.Context, organizationID, orderID uuid.UUID) ([]models.Payment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// PaymentExists reports whether the (order, provider, txn) idempotency key
// already has a recorded payment.
func (r *repository) PaymentExists(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider, txnID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND provider = ? AND provider_txn_id = ?", orderID, provider, txnID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// OrdersByNumber resolves a bare order number with no organization scope.
// Webhook events carry no tenant; ambiguity is the caller's problem.
func (r *repository) OrdersByNumber(ctx context.Context, number int64) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("order_number = ?", number).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) OrdersByNumbers(ctx context.Context, numbers []int64) ([]models.Order, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("order_number IN ?", numbers).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) SessionByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) PaymentsByOrder(ctx context.Context, organizationID, orderID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND order_id = ?", organizationID, orderID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
