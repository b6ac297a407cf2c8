package pricing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
)

type stubVoucherRepo struct {
	voucher         *models.Voucher
	usagesByEmail   map[string]int64
	incrementWins   bool
	incrementCalls  int
	createdUsages   []*models.VoucherUsage
	createdVouchers []*models.Voucher
}

func (s *stubVoucherRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubVoucherRepo) FindVoucherByCode(_ context.Context, _ uuid.UUID, code string) (*models.Voucher, error) {
	if s.voucher == nil || s.voucher.Code != code {
		return nil, gorm.ErrRecordNotFound
	}
	return s.voucher, nil
}

func (s *stubVoucherRepo) CountUsagesByEmail(_ context.Context, _ uuid.UUID, email string) (int64, error) {
	return s.usagesByEmail[email], nil
}

func (s *stubVoucherRepo) IncrementUsage(_ context.Context, _ uuid.UUID) (bool, error) {
	s.incrementCalls++
	return s.incrementWins, nil
}

func (s *stubVoucherRepo) CreateUsage(_ context.Context, usage *models.VoucherUsage) error {
	s.createdUsages = append(s.createdUsages, usage)
	return nil
}

func (s *stubVoucherRepo) CreateVoucher(_ context.Context, voucher *models.Voucher) error {
	s.createdVouchers = append(s.createdVouchers, voucher)
	return nil
}

func percentVoucher(code string, value int64) *models.Voucher {
	return &models.Voucher{
		ID:     uuid.New(),
		Code:   code,
		Type:   enums.VoucherTypePercentage,
		Value:  value,
		Active: true,
	}
}

func baseInput(orgID uuid.UUID, items ...QuoteItem) QuoteInput {
	return QuoteInput{
		OrganizationID: orgID,
		Items:          items,
		CustomerEmail:  "ana@example.com",
		Channel:        enums.OrderChannelWeb,
		ActorRole:      enums.ActorRoleCustomer,
	}
}

func TestQuotePercentageVoucher(t *testing.T) {
	t.Parallel()

	repo := &stubVoucherRepo{voucher: percentVoucher("SAVE10", 10)}
	svc, err := NewService(repo)
	require.NoError(t, err)

	code := "SAVE10"
	input := baseInput(uuid.New(), QuoteItem{
		ProductID:         uuid.New(),
		Name:              "Tsokolate Batirol",
		Quantity:          2,
		CatalogPriceCents: 500,
	})
	input.VoucherCode = &code

	quote, err := svc.Quote(context.Background(), nil, input)
	require.NoError(t, err)
	require.EqualValues(t, 1000, quote.SubtotalCents)
	require.EqualValues(t, 100, quote.DiscountCents)
	require.EqualValues(t, 900, quote.TotalCents)
	require.False(t, quote.PaidByCredit)
	require.NotNil(t, quote.Snapshot)
	require.Equal(t, "SAVE10", quote.Snapshot.Code)
	require.EqualValues(t, 100, quote.Snapshot.DiscountCents)
}

func TestQuotePercentageVoucherRespectsCap(t *testing.T) {
	t.Parallel()

	cap := int64(50)
	voucher := percentVoucher("SAVE10", 10)
	voucher.MaxDiscountCents = &cap
	repo := &stubVoucherRepo{voucher: voucher}
	svc, err := NewService(repo)
	require.NoError(t, err)

	code := "SAVE10"
	input := baseInput(uuid.New(), QuoteItem{
		ProductID:         uuid.New(),
		Name:              "Tsokolate Batirol",
		Quantity:          2,
		CatalogPriceCents: 500,
	})
	input.VoucherCode = &code

	quote, err := svc.Quote(context.Background(), nil, input)
	require.NoError(t, err)
	require.EqualValues(t, 50, quote.DiscountCents)
	require.EqualValues(t, 950, quote.TotalCents)
}

func TestQuoteRefundCreditCoversWholeOrder(t *testing.T) {
	t.Parallel()

	voucher := &models.Voucher{
		ID:     uuid.New(),
		Code:   "RC-ABCDEF1234",
		Type:   enums.VoucherTypeRefundCredit,
		Value:  5000,
		Active: true,
	}
	repo := &stubVoucherRepo{voucher: voucher}
	svc, err := NewService(repo)
	require.NoError(t, err)

	code := voucher.Code
	input := baseInput(uuid.New(), QuoteItem{
		ProductID:         uuid.New(),
		Name:              "Ensaymada Box",
		Quantity:          1,
		CatalogPriceCents: 3500,
	})
	input.VoucherCode = &code

	quote, err := svc.Quote(context.Background(), nil, input)
	require.NoError(t, err)
	require.EqualValues(t, 3500, quote.DiscountCents, "discount is capped at the subtotal")
	require.EqualValues(t, 0, quote.TotalCents)
	require.True(t, quote.PaidByCredit)
}

func TestQuoteRejectsOverrideForUntrustedCaller(t *testing.T) {
	t.Parallel()

	svc, err := NewService(&stubVoucherRepo{})
	require.NoError(t, err)

	override := int64(100)
	input := baseInput(uuid.New(), QuoteItem{
		ProductID:          uuid.New(),
		Name:               "Ensaymada Box",
		Quantity:           1,
		CatalogPriceCents:  3500,
		OverridePriceCents: &override,
	})

	_, err = svc.Quote(context.Background(), nil, input)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestQuoteAllowsOverrideForTrustedChannel(t *testing.T) {
	t.Parallel()

	svc, err := NewService(&stubVoucherRepo{})
	require.NoError(t, err)

	override := int64(100)
	input := baseInput(uuid.New(), QuoteItem{
		ProductID:          uuid.New(),
		Name:               "Ensaymada Box",
		Quantity:           2,
		CatalogPriceCents:  3500,
		OverridePriceCents: &override,
	})
	input.Channel = enums.OrderChannelChat

	quote, err := svc.Quote(context.Background(), nil, input)
	require.NoError(t, err)
	require.EqualValues(t, 200, quote.SubtotalCents)
	require.EqualValues(t, 100, quote.Items[0].UnitPriceCents)
	require.EqualValues(t, 3500, quote.Items[0].CatalogPriceCents)
}

func TestQuoteVoucherValidations(t *testing.T) {
	t.Parallel()

	orgID := uuid.New()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	usageLimit := 5
	perCustomer := 1

	cases := []struct {
		name    string
		mutate  func(v *models.Voucher, r *stubVoucherRepo)
		message string
	}{
		{
			name:    "inactive",
			mutate:  func(v *models.Voucher, _ *stubVoucherRepo) { v.Active = false },
			message: "not active",
		},
		{
			name:    "not yet valid",
			mutate:  func(v *models.Voucher, _ *stubVoucherRepo) { v.StartsAt = &future },
			message: "not yet valid",
		},
		{
			name:    "expired",
			mutate:  func(v *models.Voucher, _ *stubVoucherRepo) { v.ExpiresAt = &past },
			message: "expired",
		},
		{
			name: "usage limit exhausted",
			mutate: func(v *models.Voucher, _ *stubVoucherRepo) {
				v.UsageLimit = &usageLimit
				v.UsedCount = 5
			},
			message: "usage limit",
		},
		{
			name:    "below minimum",
			mutate:  func(v *models.Voucher, _ *stubVoucherRepo) { v.MinOrderCents = 100000 },
			message: "below voucher minimum",
		},
		{
			name: "per customer limit",
			mutate: func(v *models.Voucher, r *stubVoucherRepo) {
				v.PerCustomerLimit = &perCustomer
				r.usagesByEmail = map[string]int64{"ana@example.com": 1}
			},
			message: "already used",
		},
		{
			name: "assigned to someone else",
			mutate: func(v *models.Voucher, _ *stubVoucherRepo) {
				other := "ben@example.com"
				v.IssuedToEmail = &other
			},
			message: "assigned to another customer",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			voucher := percentVoucher("SAVE10", 10)
			repo := &stubVoucherRepo{voucher: voucher}
			tc.mutate(voucher, repo)

			svc, err := NewService(repo)
			require.NoError(t, err)

			code := "SAVE10"
			input := baseInput(orgID, QuoteItem{
				ProductID:         uuid.New(),
				Name:              "Tsokolate Batirol",
				Quantity:          2,
				CatalogPriceCents: 500,
			})
			input.VoucherCode = &code

			_, err = svc.Quote(context.Background(), nil, input)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestQuoteFreeItemVoucherRequiresMatchingSize(t *testing.T) {
	t.Parallel()

	sizeID := uuid.New()
	voucher := &models.Voucher{
		ID:             uuid.New(),
		Code:           "FREEBIE",
		Type:           enums.VoucherTypeFreeItem,
		Value:          500,
		FreeItemSizeID: &sizeID,
		Active:         true,
	}
	repo := &stubVoucherRepo{voucher: voucher}
	svc, err := NewService(repo)
	require.NoError(t, err)

	code := "FREEBIE"
	input := baseInput(uuid.New(), QuoteItem{
		ProductID:         uuid.New(),
		Name:              "Tsokolate Batirol",
		Quantity:          1,
		CatalogPriceCents: 500,
	})
	input.VoucherCode = &code

	_, err = svc.Quote(context.Background(), nil, input)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not apply")

	// Same voucher with the size present applies.
	input.Items[0].SizeID = &sizeID
	quote, err := svc.Quote(context.Background(), nil, input)
	require.NoError(t, err)
	require.EqualValues(t, 500, quote.DiscountCents)
}

func TestRedeemAccountsUsage(t *testing.T) {
	t.Parallel()

	repo := &stubVoucherRepo{voucher: percentVoucher("SAVE10", 10), incrementWins: true}
	svc, err := NewService(repo)
	require.NoError(t, err)

	code := "SAVE10"
	input := baseInput(uuid.New(), QuoteItem{
		ProductID:         uuid.New(),
		Name:              "Tsokolate Batirol",
		Quantity:          2,
		CatalogPriceCents: 500,
	})
	input.VoucherCode = &code

	quote, err := svc.Quote(context.Background(), nil, input)
	require.NoError(t, err)

	orderID := uuid.New()
	require.NoError(t, svc.Redeem(context.Background(), nil, quote, orderID))
	require.Equal(t, 1, repo.incrementCalls)
	require.Len(t, repo.createdUsages, 1)
	require.Equal(t, orderID, repo.createdUsages[0].OrderID)
	require.Equal(t, "ana@example.com", repo.createdUsages[0].CustomerEmail)
	require.EqualValues(t, 100, repo.createdUsages[0].DiscountCents)
}

func TestRedeemLosingIncrementIsConflict(t *testing.T) {
	t.Parallel()

	repo := &stubVoucherRepo{voucher: percentVoucher("SAVE10", 10), incrementWins: false}
	svc, err := NewService(repo)
	require.NoError(t, err)

	code := "SAVE10"
	input := baseInput(uuid.New(), QuoteItem{
		ProductID:         uuid.New(),
		Name:              "Tsokolate Batirol",
		Quantity:          2,
		CatalogPriceCents: 500,
	})
	input.VoucherCode = &code

	quote, err := svc.Quote(context.Background(), nil, input)
	require.NoError(t, err)

	err = svc.Redeem(context.Background(), nil, quote, uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeConflict, typed.Code())
	require.Empty(t, repo.createdUsages)
}

func TestIssueRefundCredit(t *testing.T) {
	t.Parallel()

	repo := &stubVoucherRepo{}
	svc, err := NewService(repo)
	require.NoError(t, err)

	voucher, err := svc.IssueRefundCredit(context.Background(), nil, IssueRefundCreditInput{
		OrganizationID: uuid.New(),
		SourceOrderID:  uuid.New(),
		CustomerEmail:  "Ana@Example.com",
		AmountCents:    2500,
		ValidFor:       30 * 24 * time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, enums.VoucherTypeRefundCredit, voucher.Type)
	require.EqualValues(t, 2500, voucher.Value)
	require.True(t, strings.HasPrefix(voucher.Code, "RC-"))
	require.NotNil(t, voucher.UsageLimit)
	require.Equal(t, 1, *voucher.UsageLimit)
	require.NotNil(t, voucher.IssuedToEmail)
	require.Equal(t, "ana@example.com", *voucher.IssuedToEmail)
	require.NotNil(t, voucher.ExpiresAt)
	require.Len(t, repo.createdVouchers, 1)
}
