package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/money"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

// QuoteItem is one requested line with its catalog price already resolved.
// An override price is honored only for privileged actors or trusted
// channels.
type QuoteItem struct {
	ProductID          uuid.UUID
	VariantID          *uuid.UUID
	SizeID             *uuid.UUID
	Name               string
	Quantity           int
	CatalogPriceCents  int64
	OverridePriceCents *int64
	Note               *string
}

// QuoteInput carries everything the engine needs to price an item list.
type QuoteInput struct {
	OrganizationID uuid.UUID
	Items          []QuoteItem
	VoucherCode    *string
	CustomerID     *uuid.UUID
	CustomerEmail  string
	Channel        enums.OrderChannel
	ActorRole      enums.ActorRole
}

// Quote is the priced result. PaidByCredit marks the one path that skips the
// payment provider: a voucher discount that covers the whole order.
type Quote struct {
	Items         []types.OrderItemSnapshot
	SubtotalCents int64
	DiscountCents int64
	TotalCents    int64
	Voucher       *models.Voucher
	Snapshot      *types.VoucherSnapshot
	PaidByCredit  bool

	customerID    *uuid.UUID
	customerEmail string
}

// IssueRefundCreditInput describes a compensation voucher for a cancelled
// paid order.
type IssueRefundCreditInput struct {
	OrganizationID uuid.UUID
	SourceOrderID  uuid.UUID
	CustomerEmail  string
	AmountCents    int64
	ValidFor       time.Duration
}

// Service prices item lists and accounts voucher redemptions.
type Service interface {
	Quote(ctx context.Context, tx *gorm.DB, input QuoteInput) (*Quote, error)
	Redeem(ctx context.Context, tx *gorm.DB, quote *Quote, orderID uuid.UUID) error
	IssueRefundCredit(ctx context.Context, tx *gorm.DB, input IssueRefundCreditInput) (*models.Voucher, error)
}

type service struct {
	repo Repository
}

// NewService wires a pricing service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("pricing repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Quote(ctx context.Context, tx *gorm.DB, input QuoteInput) (*Quote, error) {
	if input.OrganizationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}

	overrideAllowed := input.ActorRole.IsPrivileged() || input.Channel.IsTrusted()

	snapshots := make([]types.OrderItemSnapshot, 0, len(input.Items))
	var subtotal int64
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if item.CatalogPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog price must not be negative")
		}

		charged := item.CatalogPriceCents
		if item.OverridePriceCents != nil {
			if !overrideAllowed {
				return nil, pkgerrors.New(pkgerrors.CodeForbidden, "price override not permitted")
			}
			if *item.OverridePriceCents < 0 {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "override price must not be negative")
			}
			charged = *item.OverridePriceCents
		}

		snapshots = append(snapshots, types.OrderItemSnapshot{
			ProductID:         item.ProductID,
			VariantID:         item.VariantID,
			SizeID:            item.SizeID,
			Name:              item.Name,
			Quantity:          item.Quantity,
			UnitPriceCents:    charged,
			CatalogPriceCents: item.CatalogPriceCents,
			Note:              item.Note,
		})
		subtotal += charged * int64(item.Quantity)
	}

	quote := &Quote{
		Items:         snapshots,
		SubtotalCents: subtotal,
		TotalCents:    subtotal,
		customerID:    input.CustomerID,
		customerEmail: strings.ToLower(strings.TrimSpace(input.CustomerEmail)),
	}

	if input.VoucherCode == nil || strings.TrimSpace(*input.VoucherCode) == "" {
		return quote, nil
	}

	voucher, discount, err := s.applyVoucher(ctx, tx, input, subtotal, snapshots)
	if err != nil {
		return nil, err
	}

	quote.Voucher = voucher
	quote.DiscountCents = discount
	quote.TotalCents = money.ClampNonNegative(subtotal - discount)
	quote.Snapshot = &types.VoucherSnapshot{
		VoucherID:        voucher.ID,
		Code:             voucher.Code,
		Type:             voucher.Type.String(),
		Value:            voucher.Value,
		MaxDiscountCents: voucher.MaxDiscountCents,
		DiscountCents:    discount,
	}
	quote.PaidByCredit = quote.TotalCents == 0 && discount > 0
	return quote, nil
}

func (s *service) applyVoucher(ctx context.Context, tx *gorm.DB, input QuoteInput, subtotal int64, items []types.OrderItemSnapshot) (*models.Voucher, int64, error) {
	repo := s.repo.WithTx(tx)
	code := strings.ToUpper(strings.TrimSpace(*input.VoucherCode))

	voucher, err := repo.FindVoucherByCode(ctx, input.OrganizationID, code)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, 0, pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
		}
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}

	now := time.Now()
	if !voucher.Active {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "voucher is not active")
	}
	if voucher.StartsAt != nil && now.Before(*voucher.StartsAt) {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "voucher is not yet valid")
	}
	if voucher.ExpiresAt != nil && now.After(*voucher.ExpiresAt) {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "voucher has expired")
	}
	if voucher.UsageLimit != nil && voucher.UsedCount >= *voucher.UsageLimit {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "voucher usage limit reached")
	}
	if subtotal < voucher.MinOrderCents {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "order below voucher minimum")
	}
	if voucher.IssuedToEmail != nil &&
		!strings.EqualFold(strings.TrimSpace(*voucher.IssuedToEmail), strings.TrimSpace(input.CustomerEmail)) {
		return nil, 0, pkgerrors.New(pkgerrors.CodeForbidden, "voucher is assigned to another customer")
	}

	if voucher.PerCustomerLimit != nil {
		email := strings.ToLower(strings.TrimSpace(input.CustomerEmail))
		if email == "" {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "customer email required for this voucher")
		}
		used, err := repo.CountUsagesByEmail(ctx, voucher.ID, email)
		if err != nil {
			return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count voucher usages")
		}
		if used >= int64(*voucher.PerCustomerLimit) {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "voucher already used by this customer")
		}
	}

	if voucher.Type == enums.VoucherTypeFreeItem && voucher.FreeItemSizeID != nil {
		if !itemsContainSize(items, *voucher.FreeItemSizeID) {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "voucher does not apply to any ordered item")
		}
	}

	return voucher, discountFor(voucher, subtotal), nil
}

func discountFor(voucher *models.Voucher, subtotal int64) int64 {
	switch voucher.Type {
	case enums.VoucherTypePercentage:
		return money.CapAt(money.PercentageOf(subtotal, voucher.Value), voucher.MaxDiscountCents)
	case enums.VoucherTypeFixed, enums.VoucherTypeRefundCredit, enums.VoucherTypeFreeItem:
		return money.Min(voucher.Value, subtotal)
	case enums.VoucherTypeFreeShipping:
		// Shipping is not priced by this engine.
		return 0
	default:
		return 0
	}
}

func itemsContainSize(items []types.OrderItemSnapshot, sizeID uuid.UUID) bool {
	for _, item := range items {
		if item.SizeID != nil && *item.SizeID == sizeID {
			return true
		}
	}
	return false
}

// Redeem accounts a voucher redemption inside the order-creation
// transaction. The guarded counter increment is what makes concurrent
// redemptions of the last slot resolve to exactly one winner.
func (s *service) Redeem(ctx context.Context, tx *gorm.DB, quote *Quote, orderID uuid.UUID) error {
	if quote == nil || quote.Voucher == nil {
		return nil
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	repo := s.repo.WithTx(tx)

	won, err := repo.IncrementUsage(ctx, quote.Voucher.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment voucher usage")
	}
	if !won {
		return pkgerrors.New(pkgerrors.CodeConflict, "voucher usage limit reached")
	}

	usage := &models.VoucherUsage{
		VoucherID:     quote.Voucher.ID,
		OrderID:       orderID,
		CustomerID:    quote.customerID,
		CustomerEmail: quote.customerEmail,
		DiscountCents: quote.DiscountCents,
	}
	return repo.CreateUsage(ctx, usage)
}

// IssueRefundCredit mints a single-use voucher assigned to the refunded
// customer, worth the amount they paid on the cancelled order.
func (s *service) IssueRefundCredit(ctx context.Context, tx *gorm.DB, input IssueRefundCreditInput) (*models.Voucher, error) {
	if input.OrganizationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund credit amount must be positive")
	}
	email := strings.ToLower(strings.TrimSpace(input.CustomerEmail))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}

	limit := 1
	expiresAt := time.Now().Add(input.ValidFor)
	sourceID := input.SourceOrderID
	voucher := &models.Voucher{
		OrganizationID:   input.OrganizationID,
		Code:             refundCreditCode(),
		Type:             enums.VoucherTypeRefundCredit,
		Value:            input.AmountCents,
		UsageLimit:       &limit,
		PerCustomerLimit: &limit,
		IssuedToEmail:    &email,
		SourceOrderID:    &sourceID,
		Active:           true,
	}
	if input.ValidFor > 0 {
		voucher.ExpiresAt = &expiresAt
	}

	repo := s.repo.WithTx(tx)
	if err := repo.CreateVoucher(ctx, voucher); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund credit voucher")
	}
	return voucher, nil
}

func refundCreditCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "RC-" + raw[:10]
}
