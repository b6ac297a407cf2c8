package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	dbtypes "github.com/migueldlcruz/tindago-backend/pkg/db/types"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
)

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{`
CREATE TABLE IF NOT EXISTS checkout_sessions (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  customer_id TEXT,
  member_order_ids TEXT NOT NULL,
  token TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'pending',
  amount_cents INTEGER NOT NULL,
  guest_email TEXT,
  intent_state TEXT NOT NULL DEFAULT 'none',
  intent_claimed_at DATETIME,
  stuck_flagged_at DATETIME,
  provider TEXT,
  invoice_id TEXT,
  invoice_url TEXT,
  expires_at DATETIME NOT NULL,
  paid_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
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
  item_count INTEGER NOT NULL DEFAULT 1,
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
  updated_at DATETIME
);`}

	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedSession(t *testing.T, db *gorm.DB, orderIDs ...uuid.UUID) *models.CheckoutSession {
	t.Helper()

	session := &models.CheckoutSession{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		MemberOrderIDs: dbtypes.UUIDArray(orderIDs),
		Token:          uuid.NewString(),
		Status:         enums.CheckoutSessionStatusPending,
		AmountCents:    150000,
		IntentState:    enums.InvoiceIntentStateNone,
		ExpiresAt:      time.Now().UTC().Add(24 * time.Hour),
	}
	require.NoError(t, db.Create(session).Error)
	return session
}

func TestClaimIntentWinsOnce(t *testing.T) {
	db := setupCheckoutTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	session := seedSession(t, db, uuid.New())
	now := time.Now().UTC()

	won, err := repo.ClaimIntent(ctx, session.ID, now)
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.ClaimIntent(ctx, session.ID, now)
	require.NoError(t, err)
	require.False(t, won)

	// The claim never goes back to none; only recording advances it.
	found, err := repo.FindByToken(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, enums.InvoiceIntentStateClaimed, found.IntentState)
}

func TestRecordIntentPersistsInvoiceFields(t *testing.T) {
	db := setupCheckoutTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	session := seedSession(t, db, uuid.New())
	now := time.Now().UTC()

	won, err := repo.ClaimIntent(ctx, session.ID, now)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, repo.RecordIntent(ctx, session.ID,
		enums.PaymentProviderXendit, "inv_123", "https://pay.example/inv_123"))

	found, err := repo.FindByToken(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, enums.InvoiceIntentStateRecorded, found.IntentState)
	require.NotNil(t, found.Provider)
	require.Equal(t, enums.PaymentProviderXendit, *found.Provider)
	require.Equal(t, "inv_123", *found.InvoiceID)
	require.Equal(t, "https://pay.example/inv_123", *found.InvoiceURL)
}

func TestMarkPaidGuardsPendingStatus(t *testing.T) {
	db := setupCheckoutTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	session := seedSession(t, db, uuid.New())
	now := time.Now().UTC()

	done, err := repo.MarkPaid(ctx, session.ID, now)
	require.NoError(t, err)
	require.True(t, done)

	done, err = repo.MarkPaid(ctx, session.ID, now)
	require.NoError(t, err)
	require.False(t, done)

	done, err = repo.MarkCancelled(ctx, session.ID, now)
	require.NoError(t, err)
	require.False(t, done)

	found, err := repo.FindByToken(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutSessionStatusPaid, found.Status)
	require.NotNil(t, found.PaidAt)
}

func TestExpirePendingAndFlagStuck(t *testing.T) {
	db := setupCheckoutTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := seedSession(t, db, uuid.New())
	require.NoError(t, db.Model(&models.CheckoutSession{}).
		Where("id = ?", stale.ID).
		UpdateColumn("expires_at", now.Add(-time.Hour)).Error)
	fresh := seedSession(t, db, uuid.New())

	count, err := repo.ExpirePending(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	found, err := repo.FindByToken(ctx, stale.Token)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutSessionStatusExpired, found.Status)

	found, err = repo.FindByToken(ctx, fresh.Token)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutSessionStatusPending, found.Status)

	won, err := repo.ClaimIntent(ctx, fresh.ID, now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.True(t, won)

	count, err = repo.FlagStuckIntents(ctx, now.Add(-5*time.Minute), now)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	// Already-flagged rows are not re-flagged.
	count, err = repo.FlagStuckIntents(ctx, now.Add(-5*time.Minute), now)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}

func TestStampOrdersLinksSessions(t *testing.T) {
	db := setupCheckoutTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := models.Order{ID: uuid.New(), OrganizationID: uuid.New(), OrderNumber: 1,
		CustomerName: "Marco Reyes", SubtotalCents: 1000, TotalCents: 1000, ItemCount: 1}
	second := models.Order{ID: uuid.New(), OrganizationID: first.OrganizationID, OrderNumber: 2,
		CustomerName: "Marco Reyes", SubtotalCents: 500, TotalCents: 500, ItemCount: 1}
	require.NoError(t, db.Omit("LineItems", "Payments").Create(&first).Error)
	require.NoError(t, db.Omit("LineItems", "Payments").Create(&second).Error)

	session := seedSession(t, db, first.ID, second.ID)
	require.NoError(t, repo.StampOrders(ctx, []uuid.UUID{first.ID, second.ID}, session.ID))

	var stamped []models.Order
	require.NoError(t, db.Where("session_id = ?", session.ID).Find(&stamped).Error)
	require.Len(t, stamped, 2)
}
