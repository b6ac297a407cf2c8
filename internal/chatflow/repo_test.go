package chatflow

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
)

func setupChatflowTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE chat_order_sessions (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			channel_user_id TEXT NOT NULL,
			step TEXT NOT NULL DEFAULT 'VARIANT_SELECTION',
			draft_variant_id TEXT,
			draft_size_id TEXT,
			draft_quantity INTEGER NOT NULL DEFAULT 0,
			draft_note TEXT,
			draft_items TEXT,
			email TEXT,
			email_verified INTEGER NOT NULL DEFAULT 0,
			otp_attempts INTEGER NOT NULL DEFAULT 0,
			order_id TEXT,
			cancel_reason TEXT,
			last_activity_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE products (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			category TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME
		)`,
		`CREATE TABLE product_variants (
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
		)`,
		`CREATE TABLE variant_sizes (
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
		)`,
		`CREATE TABLE users (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			email TEXT NOT NULL,
			name TEXT NOT NULL,
			phone TEXT,
			role TEXT NOT NULL DEFAULT 'customer',
			password_hash TEXT NOT NULL DEFAULT '',
			last_login_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME
		)`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

func seedChatSession(t *testing.T, db *gorm.DB, mutate func(*models.ChatOrderSession)) *models.ChatOrderSession {
	t.Helper()
	now := time.Now().UTC()
	session := &models.ChatOrderSession{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		ProductID:      uuid.New(),
		ChannelUserID:  "fb-100",
		Step:           enums.ChatStepVariantSelection,
		LastActivityAt: now,
		ExpiresAt:      now.Add(30 * time.Minute),
	}
	if mutate != nil {
		mutate(session)
	}
	require.NoError(t, db.Create(session).Error)
	return session
}

func TestFindActiveSkipsTerminalSessions(t *testing.T) {
	db := setupChatflowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	seedChatSession(t, db, func(s *models.ChatOrderSession) {
		s.OrganizationID = orgID
		s.Step = enums.ChatStepCancelled
		s.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	})
	live := seedChatSession(t, db, func(s *models.ChatOrderSession) {
		s.OrganizationID = orgID
		s.Step = enums.ChatStepQuantityInput
		s.CreatedAt = time.Now().UTC().Add(-time.Hour)
	})

	found, err := repo.FindActive(ctx, orgID, "fb-100")
	require.NoError(t, err)
	require.Equal(t, live.ID, found.ID)

	_, err = repo.FindActive(ctx, orgID, "fb-someone-else")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeactivatePriorCancelsLiveSessionsOnly(t *testing.T) {
	db := setupChatflowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	live := seedChatSession(t, db, func(s *models.ChatOrderSession) {
		s.OrganizationID = orgID
		s.Step = enums.ChatStepNotesInput
	})
	done := seedChatSession(t, db, func(s *models.ChatOrderSession) {
		s.OrganizationID = orgID
		s.Step = enums.ChatStepCompleted
	})

	count, err := repo.DeactivatePrior(ctx, orgID, "fb-100", time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	var reloaded models.ChatOrderSession
	require.NoError(t, db.First(&reloaded, "id = ?", live.ID).Error)
	require.Equal(t, enums.ChatStepCancelled, reloaded.Step)
	require.NotNil(t, reloaded.CancelReason)
	require.Equal(t, "superseded by new order", *reloaded.CancelReason)

	require.NoError(t, db.First(&reloaded, "id = ?", done.ID).Error)
	require.Equal(t, enums.ChatStepCompleted, reloaded.Step)
}

func TestLastVerifiedEmailReturnsMostRecent(t *testing.T) {
	db := setupChatflowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	older := "old@example.ph"
	newer := "new@example.ph"
	seedChatSession(t, db, func(s *models.ChatOrderSession) {
		s.OrganizationID = orgID
		s.Step = enums.ChatStepCompleted
		s.Email = &older
		s.EmailVerified = true
		s.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	})
	seedChatSession(t, db, func(s *models.ChatOrderSession) {
		s.OrganizationID = orgID
		s.Step = enums.ChatStepCompleted
		s.Email = &newer
		s.EmailVerified = true
		s.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	})
	unverified := "never@example.ph"
	seedChatSession(t, db, func(s *models.ChatOrderSession) {
		s.OrganizationID = orgID
		s.Step = enums.ChatStepCancelled
		s.Email = &unverified
	})

	email, err := repo.LastVerifiedEmail(ctx, orgID, "fb-100")
	require.NoError(t, err)
	require.NotNil(t, email)
	require.Equal(t, newer, *email)

	// No verified history is not an error.
	email, err = repo.LastVerifiedEmail(ctx, orgID, "fb-unknown")
	require.NoError(t, err)
	require.Nil(t, email)
}

func TestProductWithVariantsPreloadsActiveOnly(t *testing.T) {
	db := setupChatflowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	product := &models.Product{ID: uuid.New(), OrganizationID: orgID, Name: "Halo-Halo", Active: true}
	require.NoError(t, db.Omit("Variants").Create(product).Error)

	active := &models.ProductVariant{ID: uuid.New(), ProductID: product.ID, Name: "Regular", PriceCents: 9500, Active: true}
	retired := &models.ProductVariant{ID: uuid.New(), ProductID: product.ID, Name: "Seasonal", PriceCents: 12000, Active: false}
	require.NoError(t, db.Omit("Sizes").Create(active).Error)
	require.NoError(t, db.Omit("Sizes").Create(retired).Error)
	require.NoError(t, db.Create(&models.VariantSize{
		ID: uuid.New(), VariantID: active.ID, Name: "Grande", PriceCents: 11000, Active: true,
	}).Error)
	require.NoError(t, db.Create(&models.VariantSize{
		ID: uuid.New(), VariantID: active.ID, Name: "Retired", PriceCents: 8000, Active: false,
	}).Error)

	loaded, err := repo.ProductWithVariants(ctx, orgID, product.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Variants, 1)
	require.Equal(t, "Regular", loaded.Variants[0].Name)
	require.Len(t, loaded.Variants[0].Sizes, 1)
	require.Equal(t, "Grande", loaded.Variants[0].Sizes[0].Name)

	// Foreign org can't see it.
	_, err = repo.ProductWithVariants(ctx, uuid.New(), product.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserByEmailIsCaseInsensitive(t *testing.T) {
	db := setupChatflowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	user := &models.User{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Email:          "marco@example.ph",
		Name:           "Marco",
		Role:           enums.ActorRoleCustomer,
		PasswordHash:   "x",
	}
	require.NoError(t, db.Create(user).Error)

	found, err := repo.UserByEmail(ctx, orgID, "MARCO@Example.PH")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)

	deleted := time.Now().UTC()
	require.NoError(t, db.Model(user).Update("deleted_at", deleted).Error)
	_, err = repo.UserByEmail(ctx, orgID, "marco@example.ph")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCloseIdleAndCloseExpired(t *testing.T) {
	db := setupChatflowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	idle := seedChatSession(t, db, func(s *models.ChatOrderSession) {
		s.LastActivityAt = now.Add(-20 * time.Minute)
		s.ExpiresAt = now.Add(10 * time.Minute)
	})
	expired := seedChatSession(t, db, func(s *models.ChatOrderSession) {
		s.LastActivityAt = now
		s.ExpiresAt = now.Add(-time.Minute)
	})
	fresh := seedChatSession(t, db, func(s *models.ChatOrderSession) {
		s.LastActivityAt = now
		s.ExpiresAt = now.Add(25 * time.Minute)
	})

	count, err := repo.CloseIdle(ctx, now, 10*time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	count, err = repo.CloseExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	var reloaded models.ChatOrderSession
	require.NoError(t, db.First(&reloaded, "id = ?", idle.ID).Error)
	require.Equal(t, enums.ChatStepCancelled, reloaded.Step)
	require.Equal(t, "idle timeout", *reloaded.CancelReason)

	require.NoError(t, db.First(&reloaded, "id = ?", expired.ID).Error)
	require.Equal(t, enums.ChatStepCancelled, reloaded.Step)
	require.Equal(t, "session expired", *reloaded.CancelReason)

	require.NoError(t, db.First(&reloaded, "id = ?", fresh.ID).Error)
	require.Equal(t, enums.ChatStepVariantSelection, reloaded.Step)
}
