package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
)

// Repository manages stock counters on variants and sizes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error)
	FindSize(ctx context.Context, sizeID uuid.UUID) (*models.VariantSize, error)
	DeductVariant(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
	DeductSize(ctx context.Context, sizeID uuid.UUID, qty int) (bool, error)
	DrainVariant(ctx context.Context, variantID uuid.UUID, qty int) error
	RestoreVariant(ctx context.Context, variantID uuid.UUID, qty int) error
	RestoreSize(ctx context.Context, sizeID uuid.UUID, qty int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).First(&variant, "id = ?", variantID).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) FindSize(ctx context.Context, sizeID uuid.UUID) (*models.VariantSize, error) {
	var size models.VariantSize
	if err := r.db.WithContext(ctx).First(&size, "id = ?", sizeID).Error; err != nil {
		return nil, err
	}
	return &size, nil
}

// DeductVariant decrements a variant counter, guarding against oversell in
// the same statement. It reports whether a row was actually updated.
func (r *repository) DeductVariant(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE product_variants
		SET stock_quantity = stock_quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock_type = 'STOCK' AND stock_quantity >= ?
	`, qty, variantID, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeductSize is the size-level counterpart of DeductVariant.
func (r *repository) DeductSize(ctx context.Context, sizeID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE variant_sizes
		SET stock_quantity = stock_quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock_type = 'STOCK' AND stock_quantity >= ?
	`, qty, sizeID, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DrainVariant decrements the coarser variant counter after a size-level
// check already admitted the quantity. It clamps at zero instead of gating
// again so a stale variant counter cannot block a sale the size allowed.
func (r *repository) DrainVariant(ctx context.Context, variantID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE product_variants
		SET stock_quantity = CASE WHEN stock_quantity > ? THEN stock_quantity - ? ELSE 0 END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock_type = 'STOCK'
	`, qty, qty, variantID).Error
}

func (r *repository) RestoreVariant(ctx context.Context, variantID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE product_variants
		SET stock_quantity = stock_quantity + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock_type = 'STOCK'
	`, qty, variantID).Error
}

func (r *repository) RestoreSize(ctx context.Context, sizeID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE variant_sizes
		SET stock_quantity = stock_quantity + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock_type = 'STOCK'
	`, qty, sizeID).Error
}
