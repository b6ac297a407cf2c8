package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/internal/audit"
	"github.com/migueldlcruz/tindago-backend/internal/inventory"
	"github.com/migueldlcruz/tindago-backend/internal/notifications"
	"github.com/migueldlcruz/tindago-backend/internal/orderlog"
	"github.com/migueldlcruz/tindago-backend/internal/pricing"
	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
	"github.com/migueldlcruz/tindago-backend/pkg/pagination"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

const (
	// statusHistoryLimit caps the recent-transition trail embedded on the
	// order row. The unbounded record lives in order_logs.
	statusHistoryLimit = 5

	maxLineQuantity = 99

	refundCreditValidity = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ListResult wraps a page of orders plus the cursor for the next page.
type ListResult struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Service is the order builder and lifecycle state machine. The *Tx methods
// compose into transactions owned by the checkout guard and the payment
// reconciler.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, organizationID, orderID uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, organizationID uuid.UUID, number int64) (*models.Order, error)
	List(ctx context.Context, organizationID uuid.UUID, params pagination.Params, filters ListFilters) (*ListResult, error)
	ChangeStatus(ctx context.Context, input ChangeStatusInput) (*models.Order, error)
	ChangePaymentStatus(ctx context.Context, input ChangePaymentStatusInput) (*models.Order, error)

	FindByIDsTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Order, error)
	ApplyPaymentTx(ctx context.Context, tx *gorm.DB, order *models.Order, amountCents int64, actor Actor) error
	CancelTx(ctx context.Context, tx *gorm.DB, order *models.Order, actor Actor, reason string) error
	AttachInvoiceTx(ctx context.Context, tx *gorm.DB, orders []models.Order, invoiceID, invoiceURL string, actor Actor) error
}

type service struct {
	repo      Repository
	tx        txRunner
	pricing   pricing.Service
	inventory inventory.Service
	logs      orderlog.Service
	audit     audit.Service
	notify    notifications.Service
	logger    *logger.Logger

	embeddedItemLimit int
}

// NewService wires the order engine dependencies.
func NewService(
	repo Repository,
	tx txRunner,
	pricingSvc pricing.Service,
	inventorySvc inventory.Service,
	logs orderlog.Service,
	auditSvc audit.Service,
	notify notifications.Service,
	logg *logger.Logger,
	embeddedItemLimit int,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if pricingSvc == nil {
		return nil, fmt.Errorf("pricing service required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if logs == nil {
		return nil, fmt.Errorf("order log service required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if embeddedItemLimit <= 0 {
		return nil, fmt.Errorf("embedded item limit must be positive")
	}
	return &service{
		repo:              repo,
		tx:                tx,
		pricing:           pricingSvc,
		inventory:         inventorySvc,
		logs:              logs,
		audit:             auditSvc,
		notify:            notify,
		logger:            logg,
		embeddedItemLimit: embeddedItemLimit,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.OrganizationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}
	if !input.Channel.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order channel")
	}
	if input.Actor.ID == uuid.Nil || !input.Actor.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if strings.TrimSpace(input.CustomerName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	if input.ShippingCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping must not be negative")
	}
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: product id required", i))
		}
		if item.VariantID == nil || *item.VariantID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: variant id required", i))
		}
		if item.Quantity < 1 || item.Quantity > maxLineQuantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("item %d: quantity must be between 1 and %d", i, maxLineQuantity))
		}
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		quoteItems, lines, err := s.resolveItems(ctx, repo, input.Items)
		if err != nil {
			return err
		}

		quote, err := s.pricing.Quote(ctx, tx, pricing.QuoteInput{
			OrganizationID: input.OrganizationID,
			Items:          quoteItems,
			VoucherCode:    input.VoucherCode,
			CustomerID:     input.CustomerID,
			CustomerEmail:  emailOf(input.CustomerEmail),
			Channel:        input.Channel,
			ActorRole:      input.Actor.Role,
		})
		if err != nil {
			return err
		}

		if err := s.inventory.Reserve(ctx, tx, lines); err != nil {
			return err
		}

		number, err := repo.NextOrderNumber(ctx, input.OrganizationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}

		order := &models.Order{
			OrganizationID: input.OrganizationID,
			OrderNumber:    number,
			Channel:        input.Channel,
			CustomerID:     input.CustomerID,
			CustomerName:   strings.TrimSpace(input.CustomerName),
			CustomerEmail:  input.CustomerEmail,
			CustomerPhone:  input.CustomerPhone,
			Status:         enums.OrderStatusPending,
			PaymentStatus:  enums.PaymentStatusPending,
			SubtotalCents:  quote.SubtotalCents,
			DiscountCents:  quote.DiscountCents,
			ShippingCents:  input.ShippingCents,
			TotalCents:     quote.TotalCents + input.ShippingCents,
			Voucher:        quote.Snapshot,
			ItemCount:      countItems(quote.Items),
			Note:           input.Note,
		}
		if len(quote.Items) <= s.embeddedItemLimit {
			order.Items = quote.Items
		}
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if len(quote.Items) > s.embeddedItemLimit {
			rows := make([]models.OrderLineItem, 0, len(quote.Items))
			for _, snapshot := range quote.Items {
				rows = append(rows, lineItemFromSnapshot(order.ID, snapshot))
			}
			if err := repo.CreateLineItems(ctx, rows); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order line items")
			}
			order.LineItems = rows
		}

		if _, err := s.logs.Record(ctx, tx, orderlog.RecordInput{
			OrganizationID: order.OrganizationID,
			OrderID:        order.ID,
			Action:         enums.OrderLogActionCreated,
			ActorID:        input.Actor.ID,
			ActorRole:      input.Actor.Role,
			Message:        fmt.Sprintf("order #%d created via %s", order.OrderNumber, order.Channel),
			Details: types.JSONMap{
				"subtotal_cents": order.SubtotalCents,
				"total_cents":    order.TotalCents,
				"item_count":     order.ItemCount,
			},
		}); err != nil {
			return err
		}

		if quote.Voucher != nil {
			if err := s.pricing.Redeem(ctx, tx, quote, order.ID); err != nil {
				return err
			}
			if _, err := s.logs.Record(ctx, tx, orderlog.RecordInput{
				OrganizationID: order.OrganizationID,
				OrderID:        order.ID,
				Action:         enums.OrderLogActionVoucherRedeemed,
				ActorID:        input.Actor.ID,
				ActorRole:      input.Actor.Role,
				Message:        fmt.Sprintf("voucher %s applied", quote.Voucher.Code),
				Details:        types.JSONMap{"discount_cents": quote.DiscountCents},
			}); err != nil {
				return err
			}
		}

		// A voucher that covers the whole order settles it without ever
		// touching a payment provider.
		if quote.PaidByCredit && order.TotalCents == 0 {
			if err := s.transitionPayment(ctx, tx, order, enums.PaymentStatusPaid, input.Actor, "covered by voucher credit"); err != nil {
				return err
			}
			if err := repo.SaveTransition(ctx, order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle credit-paid order")
			}
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, organizationID, orderID uuid.UUID) (*models.Order, error) {
	if organizationID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization and order ids required")
	}
	order, err := s.repo.FindByID(ctx, organizationID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order")
	}
	return order, nil
}

func (s *service) GetByNumber(ctx context.Context, organizationID uuid.UUID, number int64) (*models.Order, error) {
	if organizationID == uuid.Nil || number <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id and order number required")
	}
	order, err := s.repo.FindByNumber(ctx, organizationID, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by number")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, organizationID uuid.UUID, params pagination.Params, filters ListFilters) (*ListResult, error) {
	if organizationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}
	rows, next, err := s.repo.List(ctx, organizationID, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	result := &ListResult{Orders: rows}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) ChangeStatus(ctx context.Context, input ChangeStatusInput) (*models.Order, error) {
	if input.OrganizationID == uuid.Nil || input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization and order ids required")
	}
	if !input.Next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if input.Actor.ID == uuid.Nil || !input.Actor.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.findTx(ctx, tx, input.OrganizationID, input.OrderID)
		if err != nil {
			return err
		}

		if input.Next == enums.OrderStatusCancelled {
			if err := s.CancelTx(ctx, tx, order, input.Actor, input.Reason); err != nil {
				return err
			}
			updated = order
			return nil
		}

		if err := s.transitionStatus(ctx, tx, order, input.Next, input.Actor, input.Reason); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).SaveTransition(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save status transition")
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) ChangePaymentStatus(ctx context.Context, input ChangePaymentStatusInput) (*models.Order, error) {
	if input.OrganizationID == uuid.Nil || input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization and order ids required")
	}
	if !input.Next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}
	if input.Actor.ID == uuid.Nil || !input.Actor.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if input.Next == enums.PaymentStatusRefunded && !input.Actor.Role.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff may mark an order refunded")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.findTx(ctx, tx, input.OrganizationID, input.OrderID)
		if err != nil {
			return err
		}
		if err := s.transitionPayment(ctx, tx, order, input.Next, input.Actor, input.Reason); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).SaveTransition(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payment transition")
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) FindByIDsTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Order, error) {
	rows, err := s.repo.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find orders")
	}
	return rows, nil
}

// ApplyPaymentTx credits a verified amount against the order balance and
// advances the payment state machine. Callers persist the Payment row and
// own the surrounding transaction.
func (s *service) ApplyPaymentTx(ctx context.Context, tx *gorm.DB, order *models.Order, amountCents int64, actor Actor) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if amountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	if order.PaymentStatus == enums.PaymentStatusRefunded {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "refunded order cannot accept payments")
	}

	order.PaidCents += amountCents

	next := enums.PaymentStatusDownpayment
	if order.PaidCents >= order.TotalCents {
		next = enums.PaymentStatusPaid
	}
	if next != order.PaymentStatus && order.PaymentStatus.CanTransitionTo(next) {
		if err := s.transitionPayment(ctx, tx, order, next, actor, "payment received"); err != nil {
			return err
		}
	}
	if err := s.repo.WithTx(tx).SaveTransition(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payment application")
	}
	return nil
}

// CancelTx cancels the order, returns reserved stock, and compensates any
// captured money with a single-use refund-credit voucher.
func (s *service) CancelTx(ctx context.Context, tx *gorm.DB, order *models.Order, actor Actor, reason string) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if order.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order #%d is already %s", order.OrderNumber, order.Status))
	}

	now := time.Now().UTC()
	previous := order.Status
	order.Status = enums.OrderStatusCancelled
	order.CancelledAt = &now
	if reason != "" {
		order.CancelReason = &reason
	}
	appendHistory(order, types.StatusHistoryEntry{
		ActorID:   actor.ID,
		ActorRole: actor.Role.String(),
		Field:     "status",
		Previous:  previous.String(),
		Next:      order.Status.String(),
		Reason:    reason,
		At:        now,
	})

	s.inventory.Restore(ctx, tx, restockLines(order))
	if _, err := s.logs.Record(ctx, tx, orderlog.RecordInput{
		OrganizationID: order.OrganizationID,
		OrderID:        order.ID,
		Action:         enums.OrderLogActionInventoryRestored,
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		Message:        "reserved stock returned",
	}); err != nil {
		return err
	}

	if order.PaidCents > 0 {
		if err := s.compensateCancelledPayment(ctx, tx, order, actor, now); err != nil {
			return err
		}
	}

	if _, err := s.logs.Record(ctx, tx, orderlog.RecordInput{
		OrganizationID: order.OrganizationID,
		OrderID:        order.ID,
		Action:         enums.OrderLogActionStatusChanged,
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		Message:        fmt.Sprintf("status %s -> %s", previous, order.Status),
		Details:        types.JSONMap{"reason": reason},
	}); err != nil {
		return err
	}

	if err := s.repo.WithTx(tx).SaveTransition(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cancellation")
	}
	return nil
}

func (s *service) AttachInvoiceTx(ctx context.Context, tx *gorm.DB, orders []models.Order, invoiceID, invoiceURL string, actor Actor) error {
	if invoiceID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	ids := make([]uuid.UUID, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
	}
	if err := s.repo.WithTx(tx).UpdateInvoiceRefs(ctx, ids, invoiceID, invoiceURL); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach invoice")
	}
	for _, order := range orders {
		if _, err := s.logs.Record(ctx, tx, orderlog.RecordInput{
			OrganizationID: order.OrganizationID,
			OrderID:        order.ID,
			Action:         enums.OrderLogActionInvoiceAttached,
			ActorID:        actor.ID,
			ActorRole:      actor.Role,
			Message:        fmt.Sprintf("invoice %s attached", invoiceID),
			Details:        types.JSONMap{"invoice_url": invoiceURL},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) findTx(ctx context.Context, tx *gorm.DB, organizationID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByID(ctx, organizationID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order")
	}
	return order, nil
}

// transitionStatus mutates the in-memory order; callers persist via
// SaveTransition. Off-graph moves are allowed only for privileged actors,
// and terminal states are final for everyone.
func (s *service) transitionStatus(ctx context.Context, tx *gorm.DB, order *models.Order, next enums.OrderStatus, actor Actor, reason string) error {
	if next == order.Status {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is already %s", next))
	}
	if !order.Status.CanTransitionTo(next) {
		if order.Status.IsTerminal() || !actor.Role.IsPrivileged() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move order from %s to %s", order.Status, next))
		}
	}

	now := time.Now().UTC()
	previous := order.Status
	order.Status = next
	switch next {
	case enums.OrderStatusReady:
		order.ReadyAt = &now
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &now
	}
	appendHistory(order, types.StatusHistoryEntry{
		ActorID:   actor.ID,
		ActorRole: actor.Role.String(),
		Field:     "status",
		Previous:  previous.String(),
		Next:      next.String(),
		Reason:    reason,
		At:        now,
	})

	if _, err := s.logs.Record(ctx, tx, orderlog.RecordInput{
		OrganizationID: order.OrganizationID,
		OrderID:        order.ID,
		Action:         enums.OrderLogActionStatusChanged,
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		Message:        fmt.Sprintf("status %s -> %s", previous, next),
		Details:        types.JSONMap{"reason": reason},
	}); err != nil {
		return err
	}

	switch next {
	case enums.OrderStatusReady:
		return s.enqueueCustomerNotice(ctx, tx, order, enums.NotificationKindOrderReady)
	case enums.OrderStatusDelivered:
		return s.enqueueCustomerNotice(ctx, tx, order, enums.NotificationKindOrderDelivered)
	}
	return nil
}

func (s *service) transitionPayment(ctx context.Context, tx *gorm.DB, order *models.Order, next enums.PaymentStatus, actor Actor, reason string) error {
	if next == order.PaymentStatus {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment is already %s", next))
	}
	if !order.PaymentStatus.CanTransitionTo(next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move payment from %s to %s", order.PaymentStatus, next))
	}

	now := time.Now().UTC()
	previous := order.PaymentStatus
	order.PaymentStatus = next
	if next == enums.PaymentStatusPaid {
		order.PaidAt = &now
		if order.PaidCents < order.TotalCents {
			order.PaidCents = order.TotalCents
		}
	}
	appendHistory(order, types.StatusHistoryEntry{
		ActorID:   actor.ID,
		ActorRole: actor.Role.String(),
		Field:     "payment_status",
		Previous:  previous.String(),
		Next:      next.String(),
		Reason:    reason,
		At:        now,
	})

	if _, err := s.logs.Record(ctx, tx, orderlog.RecordInput{
		OrganizationID: order.OrganizationID,
		OrderID:        order.ID,
		Action:         enums.OrderLogActionPaymentChanged,
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		Message:        fmt.Sprintf("payment %s -> %s", previous, next),
		Details:        types.JSONMap{"reason": reason, "paid_cents": order.PaidCents},
	}); err != nil {
		return err
	}

	if next == enums.PaymentStatusPaid {
		if err := s.enqueueCustomerNotice(ctx, tx, order, enums.NotificationKindPaymentConfirmed); err != nil {
			return err
		}
		// Full payment while still pending moves the order straight into
		// fulfillment.
		if order.Status == enums.OrderStatusPending {
			return s.transitionStatus(ctx, tx, order, enums.OrderStatusProcessing, actor, "payment settled")
		}
	}
	return nil
}

func (s *service) compensateCancelledPayment(ctx context.Context, tx *gorm.DB, order *models.Order, actor Actor, now time.Time) error {
	if order.PaymentStatus.CanTransitionTo(enums.PaymentStatusRefunded) {
		previous := order.PaymentStatus
		order.PaymentStatus = enums.PaymentStatusRefunded
		appendHistory(order, types.StatusHistoryEntry{
			ActorID:   actor.ID,
			ActorRole: actor.Role.String(),
			Field:     "payment_status",
			Previous:  previous.String(),
			Next:      order.PaymentStatus.String(),
			Reason:    "order cancelled",
			At:        now,
		})
	}

	if order.CustomerEmail == nil || *order.CustomerEmail == "" {
		logCtx := s.logger.WithField(ctx, "order_id", order.ID.String())
		s.logger.Warn(logCtx, "cancelled paid order has no customer email, refund credit skipped")
		return nil
	}

	voucher, err := s.pricing.IssueRefundCredit(ctx, tx, pricing.IssueRefundCreditInput{
		OrganizationID: order.OrganizationID,
		SourceOrderID:  order.ID,
		CustomerEmail:  *order.CustomerEmail,
		AmountCents:    order.PaidCents,
		ValidFor:       refundCreditValidity,
	})
	if err != nil {
		return err
	}

	s.audit.RecordTx(ctx, tx, audit.Entry{
		OrganizationID: &order.OrganizationID,
		Severity:       enums.AuditSeverityInfo,
		Event:          "order.refund_credit_issued",
		ActorID:        &actor.ID,
		SubjectType:    "order",
		SubjectID:      &order.ID,
		Details: types.JSONMap{
			"voucher_code": voucher.Code,
			"amount_cents": order.PaidCents,
		},
	})
	return nil
}

func (s *service) enqueueCustomerNotice(ctx context.Context, tx *gorm.DB, order *models.Order, kind enums.NotificationKind) error {
	if order.CustomerEmail == nil || *order.CustomerEmail == "" {
		return nil
	}
	return s.notify.Enqueue(ctx, tx, notifications.EnqueueInput{
		OrganizationID: order.OrganizationID,
		Kind:           kind,
		Recipient:      *order.CustomerEmail,
		OrderID:        &order.ID,
		Payload:        types.JSONMap{"order_number": order.OrderNumber},
	})
}

func (s *service) resolveItems(ctx context.Context, repo Repository, items []ItemInput) ([]pricing.QuoteItem, []inventory.Line, error) {
	quoteItems := make([]pricing.QuoteItem, 0, len(items))
	lines := make([]inventory.Line, 0, len(items))
	for i, item := range items {
		variant, err := repo.FindVariant(ctx, *item.VariantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("item %d: variant not found", i))
			}
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}
		if variant.ProductID != item.ProductID {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: variant does not belong to product", i))
		}
		if !variant.Active {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: variant is not available", i))
		}

		product, err := repo.FindProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("item %d: product not found", i))
			}
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}

		name := product.Name
		catalogPrice := variant.PriceCents
		if variant.Name != "" {
			name = name + " / " + variant.Name
		}

		if item.SizeID != nil {
			size, err := repo.FindSize(ctx, *item.SizeID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("item %d: size not found", i))
				}
				return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load size")
			}
			if size.VariantID != variant.ID {
				return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: size does not belong to variant", i))
			}
			if !size.Active {
				return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: size is not available", i))
			}
			name = name + " / " + size.Name
			catalogPrice = size.PriceCents
		}

		quoteItems = append(quoteItems, pricing.QuoteItem{
			ProductID:          item.ProductID,
			VariantID:          item.VariantID,
			SizeID:             item.SizeID,
			Name:               name,
			Quantity:           item.Quantity,
			CatalogPriceCents:  catalogPrice,
			OverridePriceCents: item.UnitPriceCents,
			Note:               item.Note,
		})
		lines = append(lines, inventory.Line{
			VariantID: *item.VariantID,
			SizeID:    item.SizeID,
			Quantity:  item.Quantity,
		})
	}
	return quoteItems, lines, nil
}

func appendHistory(order *models.Order, entry types.StatusHistoryEntry) {
	order.StatusHistory = append(order.StatusHistory, entry)
	if len(order.StatusHistory) > statusHistoryLimit {
		order.StatusHistory = order.StatusHistory[len(order.StatusHistory)-statusHistoryLimit:]
	}
}

func restockLines(order *models.Order) []inventory.Line {
	snapshots := order.Snapshots()
	lines := make([]inventory.Line, 0, len(snapshots))
	for _, snapshot := range snapshots {
		if snapshot.VariantID == nil {
			continue
		}
		lines = append(lines, inventory.Line{
			VariantID: *snapshot.VariantID,
			SizeID:    snapshot.SizeID,
			Quantity:  snapshot.Quantity,
		})
	}
	return lines
}

func lineItemFromSnapshot(orderID uuid.UUID, snapshot types.OrderItemSnapshot) models.OrderLineItem {
	return models.OrderLineItem{
		OrderID:           orderID,
		ProductID:         snapshot.ProductID,
		VariantID:         snapshot.VariantID,
		SizeID:            snapshot.SizeID,
		Name:              snapshot.Name,
		Quantity:          snapshot.Quantity,
		UnitPriceCents:    snapshot.UnitPriceCents,
		CatalogPriceCents: snapshot.CatalogPriceCents,
		Note:              snapshot.Note,
	}
}

func countItems(snapshots []types.OrderItemSnapshot) int {
	total := 0
	for _, snapshot := range snapshots {
		total += snapshot.Quantity
	}
	return total
}

func emailOf(email *string) string {
	if email == nil {
		return ""
	}
	return *email
}
