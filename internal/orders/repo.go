package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// NextOrderNumber allocates the next per-organization order number. The
// upsert serializes concurrent allocations on the counter row, so callers
// must run it inside the order-creation transaction.
func (r *repository) NextOrderNumber(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	var number int64
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO order_counters (organization_id, next_number)
		VALUES (?, 1)
		ON CONFLICT (organization_id)
		DO UPDATE SET next_number = order_counters.next_number + 1
		RETURNING next_number`, organizationID).
		Scan(&number).Error
	if err != nil {
		return 0, err
	}
	return number, nil
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("LineItems", "Payments").Create(order).Error
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, organizationID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("id = ? AND organization_id = ? AND deleted_at IS NULL", orderID, organizationID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("id IN ?", ids).
		Order("order_number ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) FindByNumber(ctx context.Context, organizationID uuid.UUID, number int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("organization_id = ? AND order_number = ? AND deleted_at IS NULL", organizationID, number).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByNumbers(ctx context.Context, organizationID uuid.UUID, numbers []int64) ([]models.Order, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("organization_id = ? AND order_number IN ? AND deleted_at IS NULL", organizationID, numbers).
		Order("order_number ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", productID).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).
		Preload("Sizes").
		Where("id = ?", variantID).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) FindSize(ctx context.Context, sizeID uuid.UUID) (*models.VariantSize, error) {
	var size models.VariantSize
	err := r.db.WithContext(ctx).
		Where("id = ?", sizeID).
		First(&size).Error
	if err != nil {
		return nil, err
	}
	return &size, nil
}

func (r *repository) List(ctx context.Context, organizationID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("organization_id = ? AND deleted_at IS NULL", organizationID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filters.PaymentStatus)
	}
	if filters.Channel != nil {
		query = query.Where("channel = ?", *filters.Channel)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	if filters.Query != "" {
		pattern := "%" + strings.ToLower(filters.Query) + "%"
		query = query.Where(
			"(LOWER(customer_name) LIKE ? OR LOWER(customer_email) LIKE ? OR CAST(order_number AS TEXT) LIKE ?)",
			pattern, pattern, pattern,
		)
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, nil, err
		}
		if cursor != nil {
			query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
		}
	}

	var orders []models.Order
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, nil, err
	}

	if len(orders) > normalized {
		next := orders[normalized]
		orders = orders[:normalized]
		return orders, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return orders, nil, nil
}

// SaveTransition persists the mutable lifecycle columns of an order. It
// writes the selected columns even when zero-valued so cleared fields stick.
func (r *repository) SaveTransition(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).
		Model(order).
		Select(
			"status", "payment_status", "paid_cents", "status_history",
			"cancel_reason", "ready_at", "delivered_at", "cancelled_at", "paid_at",
		).
		Updates(order).Error
}

func (r *repository) UpdateInvoiceRefs(ctx context.Context, ids []uuid.UUID, invoiceID, invoiceURL string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"invoice_id":  invoiceID,
			"invoice_url": invoiceURL,
		}).Error
}
