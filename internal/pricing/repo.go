package pricing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
)

// Repository manages voucher persistence and redemption accounting.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindVoucherByCode(ctx context.Context, orgID uuid.UUID, code string) (*models.Voucher, error)
	CountUsagesByEmail(ctx context.Context, voucherID uuid.UUID, email string) (int64, error)
	IncrementUsage(ctx context.Context, voucherID uuid.UUID) (bool, error)
	CreateUsage(ctx context.Context, usage *models.VoucherUsage) error
	CreateVoucher(ctx context.Context, voucher *models.Voucher) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a pricing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindVoucherByCode(ctx context.Context, orgID uuid.UUID, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND code = ?", orgID, code).
		First(&voucher).Error; err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repository) CountUsagesByEmail(ctx context.Context, voucherID uuid.UUID, email string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.VoucherUsage{}).
		Where("voucher_id = ? AND customer_email = ?", voucherID, email).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// IncrementUsage bumps the redemption counter, guarding the global limit in
// the same statement. It reports whether the increment won.
func (r *repository) IncrementUsage(ctx context.Context, voucherID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE vouchers
		SET used_count = used_count + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND (usage_limit IS NULL OR used_count < usage_limit)
	`, voucherID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CreateUsage(ctx context.Context, usage *models.VoucherUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

func (r *repository) CreateVoucher(ctx context.Context, voucher *models.Voucher) error {
	return r.db.WithContext(ctx).Create(voucher).Error
}
