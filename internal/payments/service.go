package payments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/internal/audit"
	"github.com/migueldlcruz/tindago-backend/internal/orders"
	"github.com/migueldlcruz/tindago-backend/pkg/db"
	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
	"github.com/migueldlcruz/tindago-backend/pkg/money"
	"github.com/migueldlcruz/tindago-backend/pkg/paymongo"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
	"github.com/migueldlcruz/tindago-backend/pkg/xendit"
)

// sessionReferencePrefix tags grouped payments: the provider reference is
// "checkout-<token>" whenever a checkout session minted the invoice.
const sessionReferencePrefix = "checkout-"

// paymentIdempotencyIndex is the unique index that makes webhook replays
// harmless.
const paymentIdempotencyIndex = "idx_payments_order_provider_txn"

// errDuplicateSettlement aborts the settlement transaction when the unique
// index catches a concurrent first delivery. Postgres poisons the transaction
// after a constraint violation, so the duplicate must roll back and report
// success from outside the tx rather than committing past the violation.
var errDuplicateSettlement = errors.New("duplicate settlement delivery")

// orderNumberPattern extracts "#123"-style order references from free-text
// provider descriptions. Used only when no structured reference exists.
var orderNumberPattern = regexp.MustCompile(`#(\d+)`)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type xenditVerifier interface {
	VerifyCallbackToken(header string) bool
}

type paymongoVerifier interface {
	VerifySignature(header string, body []byte, now time.Time) error
}

type orderEngine interface {
	FindByIDsTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Order, error)
	ApplyPaymentTx(ctx context.Context, tx *gorm.DB, order *models.Order, amountCents int64, actor orders.Actor) error
	CancelTx(ctx context.Context, tx *gorm.DB, order *models.Order, actor orders.Actor, reason string) error
}

type sessionGuard interface {
	FindByToken(ctx context.Context, tx *gorm.DB, token string) (*models.CheckoutSession, error)
	MarkPaidTx(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, now time.Time) (bool, error)
	MarkCancelledTx(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, now time.Time) (bool, error)
}

// Outcome classifies what a webhook delivery did.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

// Result summarizes one webhook delivery.
type Result struct {
	Outcome Outcome
	Orders  int
}

// ManualPaymentInput is a staff-keyed payment entry, used when money moved
// outside both providers (bank transfer, cash on pickup).
type ManualPaymentInput struct {
	OrganizationID uuid.UUID
	OrderID        uuid.UUID
	AmountCents    int64
	Reference      string
	Note           *string
	Actor          orders.Actor
}

// Service reconciles provider webhooks and manual entries into verified
// payment records and order state.
type Service interface {
	HandleXenditCallback(ctx context.Context, callbackToken string, body []byte) (*Result, error)
	HandlePayMongoEvent(ctx context.Context, signatureHeader string, body []byte) (*Result, error)
	RecordManualPayment(ctx context.Context, input ManualPaymentInput) (*models.Payment, error)
	ListByOrder(ctx context.Context, organizationID, orderID uuid.UUID) ([]models.Payment, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	orders   orderEngine
	sessions sessionGuard
	xendit   xenditVerifier
	paymongo paymongoVerifier
	audit    audit.Service
	logger   *logger.Logger

	systemActor orders.Actor
}

// NewService wires the payment reconciler.
func NewService(
	repo Repository,
	tx txRunner,
	orderSvc orderEngine,
	sessionSvc sessionGuard,
	xenditClient xenditVerifier,
	paymongoClient paymongoVerifier,
	auditSvc audit.Service,
	logg *logger.Logger,
	systemActorID uuid.UUID,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if sessionSvc == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	if xenditClient == nil {
		return nil, fmt.Errorf("xendit client required")
	}
	if paymongoClient == nil {
		return nil, fmt.Errorf("paymongo client required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if systemActorID == uuid.Nil {
		return nil, fmt.Errorf("system actor id required")
	}
	return &service{
		repo:        repo,
		tx:          tx,
		orders:      orderSvc,
		sessions:    sessionSvc,
		xendit:      xenditClient,
		paymongo:    paymongoClient,
		audit:       auditSvc,
		logger:      logg,
		systemActor: orders.Actor{ID: systemActorID, Role: enums.ActorRoleSystem},
	}, nil
}

// HandleXenditCallback processes an invoice callback. The shared callback
// token authenticates the delivery; anything but PAID or EXPIRED is ignored.
func (s *service) HandleXenditCallback(ctx context.Context, callbackToken string, body []byte) (*Result, error) {
	if !s.xendit.VerifyCallbackToken(callbackToken) {
		s.audit.Record(ctx, audit.Entry{
			Severity:    enums.AuditSeveritySecurity,
			Event:       "payments.webhook_unauthorized",
			SubjectType: "webhook",
			Details:     types.JSONMap{"provider": enums.PaymentProviderXendit.String()},
		})
		return nil, pkgerrors.NewSecurity(pkgerrors.CodeUnauthorized, "callback token mismatch")
	}

	cb, err := xendit.ParseInvoiceCallback(body)
	if err != nil {
		return nil, err
	}

	switch cb.Status {
	case xendit.InvoiceStatusPaid:
		amount := cb.PaidAmount
		if amount == 0 {
			amount = cb.Amount
		}
		return s.settle(ctx, settlement{
			provider:    enums.PaymentProviderXendit,
			txnID:       cb.ID,
			amountCents: amount,
			feeCents:    cb.FeesPaidAmount,
			reference:   cb.ExternalID,
			description: cb.Description,
		})
	case xendit.InvoiceStatusExpired:
		return s.abandon(ctx, cb.ExternalID, cb.Description, "payment window expired")
	default:
		logCtx := s.logger.WithFields(ctx, map[string]any{
			"provider": enums.PaymentProviderXendit.String(),
			"status":   cb.Status,
		})
		s.logger.Debug(logCtx, "ignoring unhandled callback status")
		return &Result{Outcome: OutcomeIgnored}, nil
	}
}

// HandlePayMongoEvent processes a signed webhook event. Unknown event types
// are acknowledged without processing so the provider stops retrying them.
func (s *service) HandlePayMongoEvent(ctx context.Context, signatureHeader string, body []byte) (*Result, error) {
	if err := s.paymongo.VerifySignature(signatureHeader, body, time.Now().UTC()); err != nil {
		s.audit.Record(ctx, audit.Entry{
			Severity:    enums.AuditSeveritySecurity,
			Event:       "payments.webhook_unauthorized",
			SubjectType: "webhook",
			Details:     types.JSONMap{"provider": enums.PaymentProviderPayMongo.String()},
		})
		return nil, err
	}

	event, err := paymongo.ParseEvent(body)
	if err != nil {
		return nil, err
	}
	if !event.Known() {
		logCtx := s.logger.WithFields(ctx, map[string]any{
			"provider": enums.PaymentProviderPayMongo.String(),
			"type":     event.Type,
		})
		s.logger.Debug(logCtx, "ignoring unhandled event type")
		return &Result{Outcome: OutcomeIgnored}, nil
	}

	switch event.Type {
	case paymongo.EventLinkPaymentPaid, paymongo.EventCheckoutSessionPaid, paymongo.EventPaymentPaid:
		return s.settle(ctx, settlement{
			provider:    enums.PaymentProviderPayMongo,
			txnID:       event.ResourceID,
			amountCents: event.AmountCents,
			feeCents:    event.FeeCents,
			reference:   event.ReferenceNumber,
			description: event.Description,
		})
	case paymongo.EventPaymentFailed:
		return s.abandon(ctx, event.ReferenceNumber, event.Description, "payment failed")
	default:
		return &Result{Outcome: OutcomeIgnored}, nil
	}
}

// RecordManualPayment keys in a payment that settled outside both providers.
// The reference doubles as the idempotency transaction id.
func (s *service) RecordManualPayment(ctx context.Context, input ManualPaymentInput) (*models.Payment, error) {
	if input.OrganizationID == uuid.Nil || input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization and order ids are required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if strings.TrimSpace(input.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if !input.Actor.Role.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "manual payments require staff access")
	}

	now := time.Now().UTC()
	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		members, err := s.orders.FindByIDsTx(ctx, tx, []uuid.UUID{input.OrderID})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
		}
		if len(members) == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		order := &members[0]
		if order.OrganizationID != input.OrganizationID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another organization")
		}

		payment = &models.Payment{
			ID:             uuid.New(),
			OrderID:        order.ID,
			OrganizationID: order.OrganizationID,
			Provider:       enums.PaymentProviderManual,
			ProviderTxnID:  strings.TrimSpace(input.Reference),
			AmountCents:    input.AmountCents,
			Status:         enums.PaymentRecordStatusVerified,
			Description:    input.Note,
			RecordedBy:     input.Actor.ID,
			VerifiedAt:     &now,
		}
		if err := s.repo.WithTx(tx).CreatePayment(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, paymentIdempotencyIndex) {
				return pkgerrors.New(pkgerrors.CodeIdempotency, "payment reference already recorded")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create payment record")
		}
		if err := s.orders.ApplyPaymentTx(ctx, tx, order, input.AmountCents, input.Actor); err != nil {
			return err
		}

		s.audit.RecordTx(ctx, tx, audit.Entry{
			OrganizationID: &order.OrganizationID,
			Severity:       enums.AuditSeverityInfo,
			Event:          "payments.manual_recorded",
			ActorID:        &input.Actor.ID,
			SubjectType:    "order",
			SubjectID:      &order.ID,
			Details: types.JSONMap{
				"amount_cents": input.AmountCents,
				"reference":    payment.ProviderTxnID,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) ListByOrder(ctx context.Context, organizationID, orderID uuid.UUID) ([]models.Payment, error) {
	rows, err := s.repo.PaymentsByOrder(ctx, organizationID, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list payments")
	}
	return rows, nil
}

type settlement struct {
	provider    enums.PaymentProvider
	txnID       string
	amountCents int64
	feeCents    int64
	reference   string
	description string
}

// target is the set of orders a provider event resolves to, plus the
// grouping session when one exists.
type target struct {
	session *models.CheckoutSession
	orders  []models.Order
}

func (s *service) settle(ctx context.Context, stl settlement) (*Result, error) {
	if stl.amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settled amount must be positive")
	}

	now := time.Now().UTC()
	result := &Result{Outcome: OutcomeProcessed}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		tgt, err := s.resolveTarget(ctx, tx, stl.reference, stl.description)
		if err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)

		// Replayed deliveries short-circuit before any write touches the
		// transaction; the unique index below only backstops the race
		// where two first deliveries run concurrently.
		exists, err := repo.PaymentExists(ctx, tgt.orders[0].ID, stl.provider, stl.txnID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to check payment idempotency")
		}
		if exists {
			result.Outcome = OutcomeDuplicate
			return nil
		}

		// Grouped settlements split by each member's outstanding balance,
		// not its total, so an order that was already partially paid only
		// absorbs what it still owes.
		weights := make([]int64, len(tgt.orders))
		var weightSum int64
		for i := range tgt.orders {
			weights[i] = tgt.orders[i].BalanceCents()
			weightSum += weights[i]
		}
		if weightSum == 0 {
			// Every member order is already settled; this is a replay
			// that raced past the payment-record check.
			result.Outcome = OutcomeDuplicate
			return nil
		}

		var shares []money.Share
		if len(tgt.orders) == 1 {
			shares = []money.Share{{AmountCents: stl.amountCents, FeeCents: stl.feeCents}}
		} else {
			shares, err = money.SplitProportional(stl.amountCents, stl.feeCents, weights)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to split grouped payment")
			}
		}

		for i := range tgt.orders {
			order := &tgt.orders[i]
			payment := &models.Payment{
				ID:             uuid.New(),
				OrderID:        order.ID,
				OrganizationID: order.OrganizationID,
				Provider:       stl.provider,
				ProviderTxnID:  stl.txnID,
				AmountCents:    shares[i].AmountCents,
				FeeCents:       shares[i].FeeCents,
				Status:         enums.PaymentRecordStatusVerified,
				RecordedBy:     s.systemActor.ID,
				VerifiedAt:     &now,
			}
			if tgt.session != nil {
				payment.CheckoutSessionID = &tgt.session.ID
			}
			if err := repo.CreatePayment(ctx, payment); err != nil {
				if db.IsUniqueViolation(err, paymentIdempotencyIndex) {
					return errDuplicateSettlement
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create payment record")
			}
		}

		for i := range tgt.orders {
			if shares[i].AmountCents == 0 {
				continue
			}
			if err := s.orders.ApplyPaymentTx(ctx, tx, &tgt.orders[i], shares[i].AmountCents, s.systemActor); err != nil {
				return err
			}
		}

		if tgt.session != nil {
			if _, err := s.sessions.MarkPaidTx(ctx, tx, tgt.session, now); err != nil {
				return err
			}
		}

		result.Orders = len(tgt.orders)
		orgID := tgt.orders[0].OrganizationID
		s.audit.RecordTx(ctx, tx, audit.Entry{
			OrganizationID: &orgID,
			Severity:       enums.AuditSeverityInfo,
			Event:          "payments.settled",
			SubjectType:    "webhook",
			Details: types.JSONMap{
				"provider":     stl.provider.String(),
				"txn_id":       stl.txnID,
				"amount_cents": stl.amountCents,
				"orders":       len(tgt.orders),
			},
		})
		return nil
	})
	if errors.Is(err, errDuplicateSettlement) {
		result.Outcome = OutcomeDuplicate
		err = nil
	}
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomeDuplicate {
		logCtx := s.logger.WithFields(ctx, map[string]any{
			"provider": stl.provider.String(),
			"txn_id":   stl.txnID,
		})
		s.logger.Info(logCtx, "duplicate webhook delivery ignored")
	}
	return result, nil
}

// abandon cancels the resolved orders after an expiry or failure event.
// Terminal and already-paid orders are skipped, so replays are harmless.
func (s *service) abandon(ctx context.Context, reference, description, reason string) (*Result, error) {
	now := time.Now().UTC()
	result := &Result{Outcome: OutcomeProcessed}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		tgt, err := s.resolveTarget(ctx, tx, reference, description)
		if err != nil {
			return err
		}

		var cancelled int
		for i := range tgt.orders {
			order := &tgt.orders[i]
			if order.Status.IsTerminal() || order.PaymentStatus == enums.PaymentStatusPaid {
				logCtx := s.logger.WithFields(ctx, map[string]any{
					"order_id": order.ID.String(),
					"status":   order.Status.String(),
				})
				s.logger.Info(logCtx, "skipping settled or closed order on provider expiry")
				continue
			}
			if err := s.orders.CancelTx(ctx, tx, order, s.systemActor, reason); err != nil {
				return err
			}
			cancelled++
		}

		if tgt.session != nil {
			if _, err := s.sessions.MarkCancelledTx(ctx, tx, tgt.session, now); err != nil {
				return err
			}
		}

		if cancelled == 0 {
			result.Outcome = OutcomeIgnored
			return nil
		}
		result.Orders = cancelled
		orgID := tgt.orders[0].OrganizationID
		s.audit.RecordTx(ctx, tx, audit.Entry{
			OrganizationID: &orgID,
			Severity:       enums.AuditSeverityWarning,
			Event:          "payments.abandoned",
			SubjectType:    "webhook",
			Details: types.JSONMap{
				"reason": reason,
				"orders": cancelled,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveTarget maps a provider reference to orders. Three shapes exist:
// "checkout-<token>" for grouped payments, a bare order number for single
// orders, and a free-text description listing "#<number>" references, which
// must match an existing session's member set exactly.
func (s *service) resolveTarget(ctx context.Context, tx *gorm.DB, reference, description string) (*target, error) {
	if token, ok := strings.CutPrefix(reference, sessionReferencePrefix); ok {
		session, err := s.sessions.FindByToken(ctx, tx, token)
		if err != nil {
			return nil, err
		}
		members, err := s.orders.FindByIDsTx(ctx, tx, session.MemberOrderIDs)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load member orders")
		}
		if len(members) != len(session.MemberOrderIDs) {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "session references missing orders")
		}
		return &target{session: session, orders: members}, nil
	}

	if number, err := strconv.ParseInt(strings.TrimSpace(reference), 10, 64); err == nil && number > 0 {
		matches, err := s.repo.WithTx(tx).OrdersByNumber(ctx, number)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to resolve order number")
		}
		switch len(matches) {
		case 0:
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "referenced order not found")
		case 1:
			return &target{orders: matches}, nil
		default:
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order number is ambiguous across organizations")
		}
	}

	return s.resolveFromDescription(ctx, tx, description)
}

func (s *service) resolveFromDescription(ctx context.Context, tx *gorm.DB, description string) (*target, error) {
	raw := orderNumberPattern.FindAllStringSubmatch(description, -1)
	if len(raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment carries no recognizable order reference")
	}

	seen := make(map[int64]bool, len(raw))
	numbers := make([]int64, 0, len(raw))
	for _, match := range raw {
		number, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil || number <= 0 || seen[number] {
			continue
		}
		seen[number] = true
		numbers = append(numbers, number)
	}

	matches, err := s.repo.WithTx(tx).OrdersByNumbers(ctx, numbers)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to resolve order numbers")
	}
	if len(matches) != len(numbers) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "referenced orders not found")
	}

	// Every parsed order must point at the same session, and the session's
	// member set must be exactly the parsed set. Anything else is a guess
	// the reconciler refuses to make.
	var sessionID *uuid.UUID
	memberIDs := make(map[uuid.UUID]bool, len(matches))
	for i := range matches {
		order := &matches[i]
		if order.SessionID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "described orders are not grouped in a session")
		}
		if sessionID == nil {
			sessionID = order.SessionID
		} else if *sessionID != *order.SessionID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "described orders span multiple sessions")
		}
		memberIDs[order.ID] = true
	}

	session, err := s.repo.WithTx(tx).SessionByID(ctx, *sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load grouping session")
	}
	if len(session.MemberOrderIDs) != len(memberIDs) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "described orders do not match the session member set")
	}
	for _, id := range session.MemberOrderIDs {
		if !memberIDs[id] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "described orders do not match the session member set")
		}
	}

	return &target{session: session, orders: matches}, nil
}
