package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	"github.com/migueldlcruz/tindago-backend/pkg/pagination"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{`
CREATE TABLE IF NOT EXISTS order_counters (
  organization_id TEXT PRIMARY KEY,
  next_number INTEGER NOT NULL DEFAULT 1
);`, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  order_number INTEGER NOT NULL,
  channel TEXT NOT NULL DEFAULT 'web',
  customer_id TEXT,
  customer_name TEXT NOT NULL,
  customer_email TEXT,
  customer_phone TEXT,
  status TEXT NOT NULL DEFAULT 'PENDING',
  payment_status TEXT NOT NULL DEFAULT 'PENDING',
  subtotal_cents INTEGER NOT NULL,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  paid_cents INTEGER NOT NULL DEFAULT 0,
  voucher TEXT,
  items TEXT,
  item_count INTEGER NOT NULL,
  status_history TEXT,
  note TEXT,
  cancel_reason TEXT,
  session_id TEXT,
  invoice_id TEXT,
  invoice_url TEXT,
  ready_at DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  paid_at DATETIME,
  deleted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (organization_id, order_number)
);`, `
CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT,
  size_id TEXT,
  name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  catalog_price_cents INTEGER NOT NULL,
  note TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  category TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  deleted_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS product_variants (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price_cents INTEGER NOT NULL DEFAULT 0,
  stock_type TEXT NOT NULL DEFAULT 'STOCK',
  stock_quantity INTEGER NOT NULL DEFAULT 0,
  position INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS variant_sizes (
  id TEXT PRIMARY KEY,
  variant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  stock_type TEXT NOT NULL DEFAULT 'STOCK',
  stock_quantity INTEGER NOT NULL DEFAULT 0,
  position INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, order *models.Order) *models.Order {
	t.Helper()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	require.NoError(t, db.Omit("LineItems", "Payments").Create(order).Error)
	return order
}

func TestNextOrderNumberPerOrganization(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgA := uuid.New()
	orgB := uuid.New()

	for want := int64(1); want <= 3; want++ {
		got, err := repo.NextOrderNumber(ctx, orgA)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	got, err := repo.NextOrderNumber(ctx, orgB)
	require.NoError(t, err)
	require.EqualValues(t, 1, got)
}

func TestCreateEmbeddedRoundTrip(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	variantID := uuid.New()
	order := &models.Order{
		ID:             uuid.New(),
		OrganizationID: orgID,
		OrderNumber:    1,
		Channel:        enums.OrderChannelWeb,
		CustomerName:   "Ana Reyes",
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusPending,
		SubtotalCents:  120000,
		TotalCents:     120000,
		Items: []types.OrderItemSnapshot{
			{
				ProductID:         uuid.New(),
				VariantID:         &variantID,
				Name:              "Ube Cake / Whole",
				Quantity:          2,
				UnitPriceCents:    60000,
				CatalogPriceCents: 60000,
			},
		},
		ItemCount: 2,
	}
	require.NoError(t, repo.Create(ctx, order))

	found, err := repo.FindByID(ctx, orgID, order.ID)
	require.NoError(t, err)
	require.True(t, found.Embedded())
	require.Len(t, found.Items, 1)
	require.Equal(t, variantID, *found.Items[0].VariantID)
	require.EqualValues(t, 120000, found.BalanceCents())

	_, err = repo.FindByID(ctx, uuid.New(), order.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestLineItemOverflowAndNumberLookups(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	order := seedOrder(t, db, &models.Order{
		OrganizationID: orgID,
		OrderNumber:    7,
		Channel:        enums.OrderChannelWeb,
		CustomerName:   "Marco Cruz",
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusPending,
		SubtotalCents:  5500,
		TotalCents:     5500,
		ItemCount:      11,
	})
	rows := make([]models.OrderLineItem, 0, 11)
	for i := 0; i < 11; i++ {
		rows = append(rows, models.OrderLineItem{
			ID:                uuid.New(),
			OrderID:           order.ID,
			ProductID:         uuid.New(),
			Name:              "Pastillas",
			Quantity:          1,
			UnitPriceCents:    500,
			CatalogPriceCents: 500,
		})
	}
	require.NoError(t, repo.CreateLineItems(ctx, rows))

	found, err := repo.FindByNumber(ctx, orgID, 7)
	require.NoError(t, err)
	require.False(t, found.Embedded())
	require.Len(t, found.LineItems, 11)
	require.Len(t, found.Snapshots(), 11)

	seedOrder(t, db, &models.Order{
		OrganizationID: orgID,
		OrderNumber:    8,
		Channel:        enums.OrderChannelWeb,
		CustomerName:   "Marco Cruz",
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusPending,
		SubtotalCents:  1000,
		TotalCents:     1000,
		ItemCount:      1,
	})

	many, err := repo.FindByNumbers(ctx, orgID, []int64{8, 7})
	require.NoError(t, err)
	require.Len(t, many, 2)
	require.EqualValues(t, 7, many[0].OrderNumber)
	require.EqualValues(t, 8, many[1].OrderNumber)
}

func TestListFiltersAndCursor(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	statuses := []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusProcessing,
		enums.OrderStatusPending,
	}
	names := []string{"Ana Reyes", "Marco Cruz", "Bea Santos"}
	for i := 0; i < 3; i++ {
		seedOrder(t, db, &models.Order{
			OrganizationID: orgID,
			OrderNumber:    int64(i + 1),
			Channel:        enums.OrderChannelWeb,
			CustomerName:   names[i],
			Status:         statuses[i],
			PaymentStatus:  enums.PaymentStatusPending,
			SubtotalCents:  1000,
			TotalCents:     1000,
			ItemCount:      1,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
	}

	pending := enums.OrderStatusPending
	rows, next, err := repo.List(ctx, orgID, pagination.Params{}, ListFilters{Status: &pending})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Nil(t, next)

	rows, _, err = repo.List(ctx, orgID, pagination.Params{}, ListFilters{Query: "Marco"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Marco Cruz", rows[0].CustomerName)

	rows, next, err = repo.List(ctx, orgID, pagination.Params{Limit: 2}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, next)
	require.EqualValues(t, 3, rows[0].OrderNumber)

	rows, next, err = repo.List(ctx, orgID, pagination.Params{
		Limit:  2,
		Cursor: pagination.EncodeCursor(*next),
	}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Nil(t, next)
	require.EqualValues(t, 1, rows[0].OrderNumber)
}

func TestSoftDeletedOrdersAreInvisible(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	deleted := time.Now().UTC()
	order := seedOrder(t, db, &models.Order{
		OrganizationID: orgID,
		OrderNumber:    1,
		Channel:        enums.OrderChannelWeb,
		CustomerName:   "Ana Reyes",
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusPending,
		SubtotalCents:  1000,
		TotalCents:     1000,
		ItemCount:      1,
		DeletedAt:      &deleted,
	})

	_, err := repo.FindByID(ctx, orgID, order.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.FindByNumber(ctx, orgID, 1)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	rows, _, err := repo.List(ctx, orgID, pagination.Params{}, ListFilters{})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestSaveTransitionPersistsLifecycleColumns(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	order := seedOrder(t, db, &models.Order{
		OrganizationID: orgID,
		OrderNumber:    1,
		Channel:        enums.OrderChannelWeb,
		CustomerName:   "Ana Reyes",
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusPending,
		SubtotalCents:  1000,
		TotalCents:     1000,
		ItemCount:      1,
	})

	now := time.Now().UTC()
	order.Status = enums.OrderStatusProcessing
	order.PaymentStatus = enums.PaymentStatusPaid
	order.PaidCents = 1000
	order.PaidAt = &now
	order.StatusHistory = []types.StatusHistoryEntry{
		{ActorID: uuid.New(), ActorRole: "staff", Field: "status", Previous: "PENDING", Next: "PROCESSING", At: now},
	}
	require.NoError(t, repo.SaveTransition(ctx, order))

	found, err := repo.FindByID(ctx, orgID, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusProcessing, found.Status)
	require.Equal(t, enums.PaymentStatusPaid, found.PaymentStatus)
	require.EqualValues(t, 1000, found.PaidCents)
	require.NotNil(t, found.PaidAt)
	require.Len(t, found.StatusHistory, 1)
	require.Equal(t, "PROCESSING", found.StatusHistory[0].Next)
}

func TestUpdateInvoiceRefs(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	first := seedOrder(t, db, &models.Order{
		OrganizationID: orgID,
		OrderNumber:    1,
		Channel:        enums.OrderChannelWeb,
		CustomerName:   "Ana Reyes",
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusPending,
		SubtotalCents:  1000,
		TotalCents:     1000,
		ItemCount:      1,
	})
	second := seedOrder(t, db, &models.Order{
		OrganizationID: orgID,
		OrderNumber:    2,
		Channel:        enums.OrderChannelWeb,
		CustomerName:   "Ana Reyes",
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusPending,
		SubtotalCents:  500,
		TotalCents:     500,
		ItemCount:      1,
	})

	err := repo.UpdateInvoiceRefs(ctx, []uuid.UUID{first.ID, second.ID}, "inv_123", "https://pay.example.com/inv_123")
	require.NoError(t, err)

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		found, err := repo.FindByID(ctx, orgID, id)
		require.NoError(t, err)
		require.NotNil(t, found.InvoiceID)
		require.Equal(t, "inv_123", *found.InvoiceID)
		require.Equal(t, "https://pay.example.com/inv_123", *found.InvoiceURL)
	}
}
