package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/pagination"
)

// Repository defines persistence operations for order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	NextOrderNumber(ctx context.Context, organizationID uuid.UUID) (int64, error)
	Create(ctx context.Context, order *models.Order) error
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	FindByID(ctx context.Context, organizationID, orderID uuid.UUID) (*models.Order, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error)
	FindByNumber(ctx context.Context, organizationID uuid.UUID, number int64) (*models.Order, error)
	FindByNumbers(ctx context.Context, organizationID uuid.UUID, numbers []int64) ([]models.Order, error)
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error)
	FindSize(ctx context.Context, sizeID uuid.UUID) (*models.VariantSize, error)
	List(ctx context.Context, organizationID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, *pagination.Cursor, error)
	SaveTransition(ctx context.Context, order *models.Order) error
	UpdateInvoiceRefs(ctx context.Context, ids []uuid.UUID, invoiceID, invoiceURL string) error
}
