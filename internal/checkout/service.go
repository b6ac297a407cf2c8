package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/internal/audit"
	"github.com/migueldlcruz/tindago-backend/internal/orders"
	"github.com/migueldlcruz/tindago-backend/pkg/config"
	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	dbtypes "github.com/migueldlcruz/tindago-backend/pkg/db/types"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
	"github.com/migueldlcruz/tindago-backend/pkg/paymongo"
	"github.com/migueldlcruz/tindago-backend/pkg/security"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
	"github.com/migueldlcruz/tindago-backend/pkg/xendit"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type invoiceMinter interface {
	CreateInvoice(ctx context.Context, params xendit.CreateInvoiceParams) (*xendit.Invoice, error)
}

type linkMinter interface {
	CreateLink(ctx context.Context, params paymongo.CreateLinkParams) (*paymongo.Link, error)
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type orderLoader interface {
	FindByIDsTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Order, error)
	ApplyPaymentTx(ctx context.Context, tx *gorm.DB, order *models.Order, amountCents int64, actor orders.Actor) error
	AttachInvoiceTx(ctx context.Context, tx *gorm.DB, members []models.Order, invoiceID, invoiceURL string, actor orders.Actor) error
}

// CreateInput opens a payment window over one or more orders of the same
// organization and customer.
type CreateInput struct {
	OrganizationID uuid.UUID
	OrderIDs       []uuid.UUID
	CustomerID     *uuid.UUID
	GuestEmail     *string
	Actor          orders.Actor
}

// InvoiceInput identifies the caller asking for a provider invoice.
type InvoiceInput struct {
	Token      string
	Provider   enums.PaymentProvider
	CustomerID *uuid.UUID
	GuestEmail *string
	Actor      orders.Actor
}

// Invoice is the provider-side payment handle for a session.
type Invoice struct {
	Provider   enums.PaymentProvider
	InvoiceID  string
	InvoiceURL string
}

// Service guards the checkout session lifecycle.
type Service interface {
	CreateSession(ctx context.Context, input CreateInput) (*models.CheckoutSession, error)
	GetSession(ctx context.Context, token string, actor orders.Actor, customerID *uuid.UUID, guestEmail *string) (*models.CheckoutSession, error)
	CreateOrGetInvoice(ctx context.Context, input InvoiceInput) (*Invoice, error)
	MarkPaidTx(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, now time.Time) (bool, error)
	MarkCancelledTx(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, now time.Time) (bool, error)
	FindByToken(ctx context.Context, tx *gorm.DB, token string) (*models.CheckoutSession, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	FlagStuckIntents(ctx context.Context, now time.Time) (int64, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	orders   orderLoader
	xendit   invoiceMinter
	paymongo linkMinter
	limiter  rateLimiter
	audit    audit.Service
	logger   *logger.Logger
	cfg      config.CheckoutConfig
	sweepCfg config.SweeperConfig
}

// NewService builds the checkout session guard.
func NewService(
	repo Repository,
	tx txRunner,
	orderSvc orderLoader,
	xenditClient invoiceMinter,
	paymongoClient linkMinter,
	limiter rateLimiter,
	auditSvc audit.Service,
	logg *logger.Logger,
	cfg config.CheckoutConfig,
	sweepCfg config.SweeperConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if xenditClient == nil {
		return nil, fmt.Errorf("xendit client required")
	}
	if paymongoClient == nil {
		return nil, fmt.Errorf("paymongo client required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		orders:   orderSvc,
		xendit:   xenditClient,
		paymongo: paymongoClient,
		limiter:  limiter,
		audit:    auditSvc,
		logger:   logg,
		cfg:      cfg,
		sweepCfg: sweepCfg,
	}, nil
}

// CreateSession verifies the member orders and opens a pending session
// for their combined outstanding balance.
func (s *service) CreateSession(ctx context.Context, input CreateInput) (*models.CheckoutSession, error) {
	if input.OrganizationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id is required")
	}
	if len(input.OrderIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order is required")
	}
	if input.CustomerID == nil && (input.GuestEmail == nil || *input.GuestEmail == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id or guest email is required")
	}

	var session *models.CheckoutSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		members, err := s.orders.FindByIDsTx(ctx, tx, input.OrderIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load orders")
		}
		if len(members) != len(input.OrderIDs) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "one or more orders not found")
		}

		var amount int64
		for i := range members {
			order := &members[i]
			if order.OrganizationID != input.OrganizationID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another organization")
			}
			if order.Status.IsTerminal() {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already closed")
			}
			if order.SessionID != nil {
				return pkgerrors.New(pkgerrors.CodeConflict, "order is already in a checkout session")
			}
			balance := order.BalanceCents()
			if balance <= 0 {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no outstanding balance")
			}
			amount += balance
		}

		now := time.Now().UTC()
		session = &models.CheckoutSession{
			ID:             uuid.New(),
			OrganizationID: input.OrganizationID,
			CustomerID:     input.CustomerID,
			MemberOrderIDs: dbtypes.UUIDArray(input.OrderIDs),
			Token:          uuid.NewString(),
			Status:         enums.CheckoutSessionStatusPending,
			AmountCents:    amount,
			GuestEmail:     input.GuestEmail,
			IntentState:    enums.InvoiceIntentStateNone,
			ExpiresAt:      now.Add(s.cfg.SessionTTL),
		}
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create checkout session")
		}
		if err := repo.StampOrders(ctx, input.OrderIDs, session.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to stamp member orders")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logger.WithFields(ctx, map[string]any{
		"session_id":   session.ID.String(),
		"order_count":  len(input.OrderIDs),
		"amount_cents": session.AmountCents,
	})
	s.logger.Info(logCtx, "checkout session created")
	return session, nil
}

// GetSession resolves a session by token for its owner or a privileged actor.
func (s *service) GetSession(ctx context.Context, token string, actor orders.Actor, customerID *uuid.UUID, guestEmail *string) (*models.CheckoutSession, error) {
	session, err := s.loadByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, actor, customerID, guestEmail); err != nil {
		return nil, err
	}
	return session, nil
}

// CreateOrGetInvoice mints the provider invoice for a session at most
// once. Concurrent callers race on the intent claim; losers either see
// the recorded invoice or a conflict while minting is in flight.
func (s *service) CreateOrGetInvoice(ctx context.Context, input InvoiceInput) (*Invoice, error) {
	if input.Provider != enums.PaymentProviderXendit && input.Provider != enums.PaymentProviderPayMongo {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment provider is invalid")
	}

	session, err := s.loadByToken(ctx, input.Token)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, input.Actor, input.CustomerID, input.GuestEmail); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if session.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session is closed")
	}
	if session.Expired(now) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session has expired")
	}

	// A recorded intent is returned verbatim regardless of which
	// provider the caller asked for; the session is already committed.
	if session.IntentState == enums.InvoiceIntentStateRecorded {
		return invoiceOf(session)
	}

	allowed, _, err := s.limiter.FixedWindowAllow(ctx, "checkout:"+session.Token, int64(s.cfg.AttemptLimit), s.cfg.AttemptWindow)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit check failed")
	}
	if !allowed {
		s.audit.Record(ctx, audit.Entry{
			OrganizationID: &session.OrganizationID,
			Severity:       enums.AuditSeverityWarning,
			Event:          "checkout.invoice_rate_limited",
			SubjectType:    "checkout_session",
			SubjectID:      &session.ID,
			Details:        types.JSONMap{"token_mask": security.MaskToken(session.Token)},
		})
		return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "too many invoice attempts")
	}

	claimed, err := s.repo.ClaimIntent(ctx, session.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to claim invoice intent")
	}
	if !claimed {
		// Lost the race. Re-read: the winner either recorded the
		// invoice or is still minting.
		fresh, err := s.repo.FindByToken(ctx, session.Token)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to reload checkout session")
		}
		if fresh.IntentState == enums.InvoiceIntentStateRecorded {
			return invoiceOf(fresh)
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "invoice creation already in progress")
	}

	invoice, err := s.mint(ctx, session, input.Provider)
	if err != nil {
		// A provider failure here is ambiguous: a timeout may still have
		// minted an invoice we never saw. The claim stays in place so a
		// retry cannot mint a second one; the stuck-intent sweep flags
		// the session for operator reconciliation.
		logCtx := s.logger.WithSessionID(ctx, session.ID.String())
		s.logger.Error(logCtx, "provider invoice mint failed, session held for reconciliation", err)
		s.audit.Record(ctx, audit.Entry{
			OrganizationID: &session.OrganizationID,
			Severity:       enums.AuditSeverityWarning,
			Event:          "checkout.invoice_mint_failed",
			SubjectType:    "checkout_session",
			SubjectID:      &session.ID,
			Details:        types.JSONMap{"provider": input.Provider.String()},
		})
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "failed to create provider invoice")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).RecordIntent(ctx, session.ID, invoice.Provider, invoice.InvoiceID, invoice.InvoiceURL); err != nil {
			return err
		}
		members, err := s.orders.FindByIDsTx(ctx, tx, session.MemberOrderIDs)
		if err != nil {
			return err
		}
		return s.orders.AttachInvoiceTx(ctx, tx, members, invoice.InvoiceID, invoice.InvoiceURL, input.Actor)
	})
	if err != nil {
		// The invoice exists at the provider but we could not record
		// it. The stuck-intent sweep will surface the session.
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to record invoice")
	}

	logCtx := s.logger.WithFields(ctx, map[string]any{
		"session_id": session.ID.String(),
		"provider":   invoice.Provider.String(),
		"invoice_id": invoice.InvoiceID,
	})
	s.logger.Info(logCtx, "provider invoice recorded")
	return invoice, nil
}

// MarkPaidTx closes the session after payment settles. Returns false when
// the session already left pending, which callers treat as a no-op.
func (s *service) MarkPaidTx(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, now time.Time) (bool, error) {
	done, err := s.repo.WithTx(tx).MarkPaid(ctx, session.ID, now)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to mark session paid")
	}
	if done {
		session.Status = enums.CheckoutSessionStatusPaid
		session.PaidAt = &now
	}
	return done, nil
}

// MarkCancelledTx closes the session after provider expiry or failure.
func (s *service) MarkCancelledTx(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, now time.Time) (bool, error) {
	done, err := s.repo.WithTx(tx).MarkCancelled(ctx, session.ID, now)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to mark session cancelled")
	}
	if done {
		session.Status = enums.CheckoutSessionStatusCancelled
		session.CancelledAt = &now
	}
	return done, nil
}

// FindByToken loads a session inside an existing transaction without the
// owner check. Reconciliation trusts provider callbacks, not tokens.
func (s *service) FindByToken(ctx context.Context, tx *gorm.DB, token string) (*models.CheckoutSession, error) {
	session, err := s.repo.WithTx(tx).FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load checkout session")
	}
	return session, nil
}

// ExpireStale closes pending sessions whose payment window has ended.
func (s *service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.ExpirePending(ctx, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to expire checkout sessions")
	}
	if count > 0 {
		s.logger.Info(s.logger.WithField(ctx, "count", count), "expired stale checkout sessions")
	}
	return count, nil
}

// FlagStuckIntents marks sessions whose invoice claim never completed.
func (s *service) FlagStuckIntents(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.sweepCfg.StuckIntentAge)
	count, err := s.repo.FlagStuckIntents(ctx, cutoff, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to flag stuck invoice intents")
	}
	if count > 0 {
		s.logger.Warn(s.logger.WithField(ctx, "count", count), "flagged stuck invoice intents")
	}
	return count, nil
}

func (s *service) loadByToken(ctx context.Context, token string) (*models.CheckoutSession, error) {
	if _, err := security.ValidateSessionToken(token); err != nil {
		s.audit.Record(ctx, audit.Entry{
			Severity:    enums.AuditSeveritySecurity,
			Event:       "checkout.token_malformed",
			SubjectType: "checkout_session",
			Details:     types.JSONMap{"token_mask": security.MaskToken(token)},
		})
		return nil, pkgerrors.NewSecurity(pkgerrors.CodeValidation, "session token is malformed")
	}
	session, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load checkout session")
	}
	return session, nil
}

func (s *service) authorize(ctx context.Context, session *models.CheckoutSession, actor orders.Actor, customerID *uuid.UUID, guestEmail *string) error {
	if actor.Role.IsPrivileged() {
		return nil
	}
	if session.CustomerID != nil {
		if customerID != nil && *customerID == *session.CustomerID {
			return nil
		}
	} else if session.GuestEmail != nil {
		if guestEmail != nil && strings.EqualFold(*guestEmail, *session.GuestEmail) {
			return nil
		}
	}
	s.audit.Record(ctx, audit.Entry{
		OrganizationID: &session.OrganizationID,
		Severity:       enums.AuditSeveritySecurity,
		Event:          "checkout.ownership_denied",
		SubjectType:    "checkout_session",
		SubjectID:      &session.ID,
		Details:        types.JSONMap{"token_mask": security.MaskToken(session.Token)},
	})
	return pkgerrors.NewSecurity(pkgerrors.CodeForbidden, "session does not belong to caller")
}

func (s *service) mint(ctx context.Context, session *models.CheckoutSession, provider enums.PaymentProvider) (*Invoice, error) {
	reference := "checkout-" + session.Token
	switch provider {
	case enums.PaymentProviderXendit:
		params := xendit.CreateInvoiceParams{
			ExternalID:  reference,
			AmountCents: session.AmountCents,
			Description: fmt.Sprintf("Tindago checkout (%d orders)", len(session.MemberOrderIDs)),
		}
		if session.GuestEmail != nil {
			params.PayerEmail = *session.GuestEmail
		}
		inv, err := s.xendit.CreateInvoice(ctx, params)
		if err != nil {
			return nil, err
		}
		return &Invoice{Provider: enums.PaymentProviderXendit, InvoiceID: inv.ID, InvoiceURL: inv.InvoiceURL}, nil
	case enums.PaymentProviderPayMongo:
		link, err := s.paymongo.CreateLink(ctx, paymongo.CreateLinkParams{
			ReferenceNumber: reference,
			AmountCents:     session.AmountCents,
			Description:     fmt.Sprintf("Tindago checkout (%d orders)", len(session.MemberOrderIDs)),
		})
		if err != nil {
			return nil, err
		}
		return &Invoice{Provider: enums.PaymentProviderPayMongo, InvoiceID: link.ID, InvoiceURL: link.CheckoutURL}, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

func invoiceOf(session *models.CheckoutSession) (*Invoice, error) {
	if session.Provider == nil || session.InvoiceID == nil || session.InvoiceURL == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "recorded session is missing invoice fields")
	}
	return &Invoice{
		Provider:   *session.Provider,
		InvoiceID:  *session.InvoiceID,
		InvoiceURL: *session.InvoiceURL,
	}, nil
}
