package chatflow

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

	"github.com/migueldlcruz/tindago-backend/internal/checkout"
	"github.com/migueldlcruz/tindago-backend/internal/notifications"
	"github.com/migueldlcruz/tindago-backend/internal/orders"
	"github.com/migueldlcruz/tindago-backend/pkg/config"
	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
	"github.com/migueldlcruz/tindago-backend/pkg/redis"
	"github.com/migueldlcruz/tindago-backend/pkg/security"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

const (
	minQuantity = 1
	maxQuantity = 99

	skipToken = "skip"
)

// productTriggerPattern recognizes the storefront's "order <product-id>"
// deep-link message that opens a new dialogue.
var productTriggerPattern = regexp.MustCompile(`(?i)\border\s+([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\b`)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var cancelPhrases = map[string]bool{
	"cancel":     true,
	"stop":       true,
	"huwag na":   true,
	"never mind": true,
}

type orderCreator interface {
	Create(ctx context.Context, input orders.CreateInput) (*models.Order, error)
}

type invoiceFlow interface {
	CreateSession(ctx context.Context, input checkout.CreateInput) (*models.CheckoutSession, error)
	CreateOrGetInvoice(ctx context.Context, input checkout.InvoiceInput) (*checkout.Invoice, error)
}

type notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, input notifications.EnqueueInput) error
}

// Message is one inbound chat message scoped to a conversation.
type Message struct {
	OrganizationID uuid.UUID
	ChannelUserID  string
	Text           string
}

// Reply is what the connector sends back into the conversation.
type Reply struct {
	Text       string
	Step       enums.ChatStep
	PaymentURL string
}

// Service drives the conversational order dialogue.
type Service interface {
	HandleMessage(ctx context.Context, msg Message) (*Reply, error)
	CloseStale(ctx context.Context, now time.Time) (int64, error)
}

type service struct {
	repo     Repository
	orders   orderCreator
	checkout invoiceFlow
	otp      redis.OTPStore
	notify   notifier
	logger   *logger.Logger
	cfg      config.ChatConfig
}

// NewService wires the conversational order flow.
func NewService(
	repo Repository,
	orderSvc orderCreator,
	checkoutSvc invoiceFlow,
	otpStore redis.OTPStore,
	notify notifier,
	logg *logger.Logger,
	cfg config.ChatConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("chatflow repository required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if checkoutSvc == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	if otpStore == nil {
		return nil, fmt.Errorf("otp store required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		orders:   orderSvc,
		checkout: checkoutSvc,
		otp:      otpStore,
		notify:   notify,
		logger:   logg,
		cfg:      cfg,
	}, nil
}

func (s *service) HandleMessage(ctx context.Context, msg Message) (*Reply, error) {
	if msg.OrganizationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id is required")
	}
	if strings.TrimSpace(msg.ChannelUserID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel user id is required")
	}

	text := strings.TrimSpace(msg.Text)
	now := time.Now().UTC()

	// A product trigger always starts a fresh dialogue, superseding any
	// session in progress.
	if match := productTriggerPattern.FindStringSubmatch(text); match != nil {
		productID, err := uuid.Parse(match[1])
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product reference is malformed")
		}
		return s.startSession(ctx, msg, productID, now)
	}

	session, err := s.repo.FindActive(ctx, msg.OrganizationID, msg.ChannelUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Reply{Text: "Hi! Send an order link to get started."}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load chat session")
	}

	if now.After(session.ExpiresAt) {
		return s.cancelSession(ctx, session, "session expired")
	}
	if session.Idle(now, s.cfg.IdleTimeout) {
		return s.cancelSession(ctx, session, "idle timeout")
	}
	if cancelPhrases[strings.ToLower(text)] {
		return s.cancelSession(ctx, session, "cancelled by customer")
	}

	session.LastActivityAt = now

	switch session.Step {
	case enums.ChatStepVariantSelection:
		return s.handleVariantSelection(ctx, session, text)
	case enums.ChatStepSizeSelection:
		return s.handleSizeSelection(ctx, session, text)
	case enums.ChatStepQuantityInput:
		return s.handleQuantityInput(ctx, session, text)
	case enums.ChatStepNotesInput:
		return s.handleNotesInput(ctx, session, text)
	case enums.ChatStepEmailInput:
		return s.handleEmailInput(ctx, session, text)
	case enums.ChatStepOTPVerification:
		return s.handleOTPVerification(ctx, session, text)
	case enums.ChatStepCheckout:
		// A previous checkout attempt failed mid-flight; any message
		// retries it.
		return s.finalize(ctx, session)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "chat session is in an unexpected step")
	}
}

// CloseStale cancels idle and expired sessions. Called by the sweeper.
func (s *service) CloseStale(ctx context.Context, now time.Time) (int64, error) {
	idle, err := s.repo.CloseIdle(ctx, now, s.cfg.IdleTimeout)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to close idle chat sessions")
	}
	expired, err := s.repo.CloseExpired(ctx, now)
	if err != nil {
		return idle, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to close expired chat sessions")
	}
	total := idle + expired
	if total > 0 {
		s.logger.Info(s.logger.WithField(ctx, "count", total), "closed stale chat sessions")
	}
	return total, nil
}

func (s *service) startSession(ctx context.Context, msg Message, productID uuid.UUID, now time.Time) (*Reply, error) {
	product, err := s.repo.ProductWithVariants(ctx, msg.OrganizationID, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load product")
	}
	if len(product.Variants) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "product has no available options")
	}

	if _, err := s.repo.DeactivatePrior(ctx, msg.OrganizationID, msg.ChannelUserID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to supersede prior session")
	}

	session := &models.ChatOrderSession{
		ID:             uuid.New(),
		OrganizationID: msg.OrganizationID,
		ProductID:      product.ID,
		ChannelUserID:  msg.ChannelUserID,
		Step:           enums.ChatStepVariantSelection,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.cfg.SessionTTL),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create chat session")
	}

	return &Reply{
		Text: fmt.Sprintf("%s — which option would you like?\n%s",
			product.Name, renderOptions(variantOptions(product))),
		Step: session.Step,
	}, nil
}

func (s *service) cancelSession(ctx context.Context, session *models.ChatOrderSession, reason string) (*Reply, error) {
	session.Step = enums.ChatStepCancelled
	session.CancelReason = &reason
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to cancel chat session")
	}
	return &Reply{
		Text: fmt.Sprintf("Your order was cancelled (%s). Send an order link to start again.", reason),
		Step: session.Step,
	}, nil
}

func (s *service) handleVariantSelection(ctx context.Context, session *models.ChatOrderSession, text string) (*Reply, error) {
	product, err := s.repo.ProductWithVariants(ctx, session.OrganizationID, session.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load product")
	}

	opts := variantOptions(product)
	chosen, ok := MatchOption(text, opts)
	if !ok {
		return s.reprompt(ctx, session, "Sorry, I didn't catch that. Pick one of:\n"+renderOptions(opts))
	}

	variant := variantByID(product, chosen.ID)
	if variant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "selected variant is no longer available")
	}
	session.DraftVariantID = &variant.ID

	if len(variant.Sizes) > 0 {
		session.Step = enums.ChatStepSizeSelection
		if err := s.repo.Save(ctx, session); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to save chat session")
		}
		return &Reply{
			Text: "What size?\n" + renderOptions(sizeOptions(variant)),
			Step: session.Step,
		}, nil
	}

	// No sizes: the variant price is the catalog price, resolved now while
	// the customer is looking at it.
	session.DraftItems = []types.OrderItemSnapshot{{
		ProductID:         product.ID,
		VariantID:         &variant.ID,
		Name:              product.Name + " / " + variant.Name,
		UnitPriceCents:    variant.PriceCents,
		CatalogPriceCents: variant.PriceCents,
	}}
	session.Step = enums.ChatStepQuantityInput
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to save chat session")
	}
	return &Reply{Text: "How many? (1-99)", Step: session.Step}, nil
}

func (s *service) handleSizeSelection(ctx context.Context, session *models.ChatOrderSession, text string) (*Reply, error) {
	product, err := s.repo.ProductWithVariants(ctx, session.OrganizationID, session.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load product")
	}
	if session.DraftVariantID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "chat session has no selected variant")
	}
	variant := variantByID(product, *session.DraftVariantID)
	if variant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "selected variant is no longer available")
	}

	opts := sizeOptions(variant)
	chosen, ok := MatchOption(text, opts)
	if !ok {
		return s.reprompt(ctx, session, "Sorry, I didn't catch that. Pick one of:\n"+renderOptions(opts))
	}

	var size *models.VariantSize
	for i := range variant.Sizes {
		if variant.Sizes[i].ID == chosen.ID {
			size = &variant.Sizes[i]
			break
		}
	}

	session.DraftSizeID = &size.ID
	session.DraftItems = []types.OrderItemSnapshot{{
		ProductID:         product.ID,
		VariantID:         &variant.ID,
		SizeID:            &size.ID,
		Name:              product.Name + " / " + variant.Name + " / " + size.Name,
		UnitPriceCents:    size.PriceCents,
		CatalogPriceCents: size.PriceCents,
	}}
	session.Step = enums.ChatStepQuantityInput
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to save chat session")
	}
	return &Reply{Text: "How many? (1-99)", Step: session.Step}, nil
}

func (s *service) handleQuantityInput(ctx context.Context, session *models.ChatOrderSession, text string) (*Reply, error) {
	quantity, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || quantity < minQuantity || quantity > maxQuantity {
		return s.reprompt(ctx, session, fmt.Sprintf("Please send a number between %d and %d.", minQuantity, maxQuantity))
	}

	session.DraftQuantity = quantity
	if len(session.DraftItems) == 1 {
		session.DraftItems[0].Quantity = quantity
	}
	session.Step = enums.ChatStepNotesInput
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to save chat session")
	}
	return &Reply{Text: `Any notes for this order? Reply "skip" if none.`, Step: session.Step}, nil
}

func (s *service) handleNotesInput(ctx context.Context, session *models.ChatOrderSession, text string) (*Reply, error) {
	if !strings.EqualFold(strings.TrimSpace(text), skipToken) && strings.TrimSpace(text) != "" {
		note := strings.TrimSpace(text)
		session.DraftNote = &note
	}

	// Returning customers with a verified email skip the OTP round.
	if session.Email == nil {
		known, err := s.repo.LastVerifiedEmail(ctx, session.OrganizationID, session.ChannelUserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to look up verified email")
		}
		if known == nil {
			session.Step = enums.ChatStepEmailInput
			if err := s.repo.Save(ctx, session); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to save chat session")
			}
			return &Reply{Text: "What's your email address? We'll send a verification code.", Step: session.Step}, nil
		}
		session.Email = known
		session.EmailVerified = true
	}

	session.Step = enums.ChatStepCheckout
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to save chat session")
	}
	return s.finalize(ctx, session)
}

func (s *service) handleEmailInput(ctx context.Context, session *models.ChatOrderSession, text string) (*Reply, error) {
	email := strings.ToLower(strings.TrimSpace(text))
	if !emailPattern.MatchString(email) {
		return s.reprompt(ctx, session, "That doesn't look like an email address. Try again?")
	}

	code, err := security.GenerateOTP()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to generate verification code")
	}
	hash, err := security.HashOTP(code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to hash verification code")
	}
	if err := s.otp.Set(ctx, s.otp.OTPKey(email), hash, s.cfg.OTPTTL); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to store verification code")
	}

	if err := s.notify.Enqueue(ctx, nil, notifications.EnqueueInput{
		OrganizationID: session.OrganizationID,
		Kind:           enums.NotificationKindOTPCode,
		Recipient:      email,
		Payload:        types.JSONMap{"code": code},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to send verification code")
	}

	session.Email = &email
	session.OTPAttempts = 0
	session.Step = enums.ChatStepOTPVerification
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to save chat session")
	}
	return &Reply{
		Text: fmt.Sprintf("We sent a 6-digit code to %s. Reply with it to continue.", email),
		Step: session.Step,
	}, nil
}

func (s *service) handleOTPVerification(ctx context.Context, session *models.ChatOrderSession, text string) (*Reply, error) {
	if session.Email == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "chat session has no email on record")
	}

	key := s.otp.OTPKey(*session.Email)
	hash, err := s.otp.Get(ctx, key)
	if err != nil || hash == "" {
		return s.cancelSession(ctx, session, "verification code expired")
	}

	match, err := security.VerifyOTP(strings.TrimSpace(text), hash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to verify code")
	}
	if !match {
		session.OTPAttempts++
		if session.OTPAttempts >= s.cfg.OTPMaxRetries {
			_ = s.otp.Del(ctx, key)
			return s.cancelSession(ctx, session, "too many wrong verification codes")
		}
		if err := s.repo.Save(ctx, session); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to save chat session")
		}
		return &Reply{
			Text: fmt.Sprintf("Wrong code, %d attempt(s) left.", s.cfg.OTPMaxRetries-session.OTPAttempts),
			Step: session.Step,
		}, nil
	}

	_ = s.otp.Del(ctx, key)
	session.EmailVerified = true
	session.Step = enums.ChatStepCheckout
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to save chat session")
	}
	return s.finalize(ctx, session)
}

// finalize builds the order through the trusted chat channel and opens a
// single-order checkout session for its payment link.
func (s *service) finalize(ctx context.Context, session *models.ChatOrderSession) (*Reply, error) {
	if len(session.DraftItems) != 1 || session.Email == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "chat session draft is incomplete")
	}

	user, err := s.resolveCustomer(ctx, session)
	if err != nil {
		return nil, err
	}

	draft := session.DraftItems[0]
	price := draft.UnitPriceCents
	order, err := s.orders.Create(ctx, orders.CreateInput{
		OrganizationID: session.OrganizationID,
		Channel:        enums.OrderChannelChat,
		Actor:          orders.Actor{ID: user.ID, Role: enums.ActorRoleCustomer},
		CustomerID:     &user.ID,
		CustomerName:   user.Name,
		CustomerEmail:  session.Email,
		Items: []orders.ItemInput{{
			ProductID:      draft.ProductID,
			VariantID:      draft.VariantID,
			SizeID:         draft.SizeID,
			Quantity:       session.DraftQuantity,
			UnitPriceCents: &price,
			Note:           session.DraftNote,
		}},
		Note: session.DraftNote,
	})
	if err != nil {
		return nil, err
	}

	checkoutSession, err := s.checkout.CreateSession(ctx, checkout.CreateInput{
		OrganizationID: session.OrganizationID,
		OrderIDs:       []uuid.UUID{order.ID},
		CustomerID:     &user.ID,
		Actor:          orders.Actor{ID: user.ID, Role: enums.ActorRoleCustomer},
	})
	if err != nil {
		return nil, err
	}

	invoice, err := s.checkout.CreateOrGetInvoice(ctx, checkout.InvoiceInput{
		Token:      checkoutSession.Token,
		Provider:   enums.PaymentProviderXendit,
		CustomerID: &user.ID,
		Actor:      orders.Actor{ID: user.ID, Role: enums.ActorRoleCustomer},
	})
	if err != nil {
		return nil, err
	}

	session.OrderID = &order.ID
	session.Step = enums.ChatStepCompleted
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to save chat session")
	}

	if err := s.notify.Enqueue(ctx, nil, notifications.EnqueueInput{
		OrganizationID: session.OrganizationID,
		Kind:           enums.NotificationKindPaymentLink,
		Recipient:      *session.Email,
		OrderID:        &order.ID,
		Payload:        types.JSONMap{"payment_url": invoice.InvoiceURL, "order_number": order.OrderNumber},
	}); err != nil {
		logCtx := s.logger.WithOrderID(ctx, order.ID.String())
		s.logger.Error(logCtx, "failed to queue payment link notification", err)
	}

	return &Reply{
		Text:       fmt.Sprintf("Order #%d is in! Pay here: %s", order.OrderNumber, invoice.InvoiceURL),
		Step:       session.Step,
		PaymentURL: invoice.InvoiceURL,
	}, nil
}

func (s *service) resolveCustomer(ctx context.Context, session *models.ChatOrderSession) (*models.User, error) {
	user, err := s.repo.UserByEmail(ctx, session.OrganizationID, *session.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to look up customer")
	}

	email := *session.Email
	name := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		name = email[:at]
	}
	user = &models.User{
		ID:             uuid.New(),
		OrganizationID: session.OrganizationID,
		Email:          email,
		Name:           name,
		Role:           enums.ActorRoleCustomer,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create customer")
	}
	return user, nil
}

// reprompt saves the refreshed activity timestamp and repeats the question
// without advancing the step.
func (s *service) reprompt(ctx context.Context, session *models.ChatOrderSession, text string) (*Reply, error) {
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to save chat session")
	}
	return &Reply{Text: text, Step: session.Step}, nil
}

func variantOptions(product *models.Product) []Option {
	opts := make([]Option, 0, len(product.Variants))
	for _, v := range product.Variants {
		opts = append(opts, Option{ID: v.ID, Token: v.ID.String(), Label: v.Name})
	}
	return opts
}

func sizeOptions(variant *models.ProductVariant) []Option {
	opts := make([]Option, 0, len(variant.Sizes))
	for _, size := range variant.Sizes {
		opts = append(opts, Option{ID: size.ID, Token: size.ID.String(), Label: size.Name})
	}
	return opts
}

func variantByID(product *models.Product, id uuid.UUID) *models.ProductVariant {
	for i := range product.Variants {
		if product.Variants[i].ID == id {
			return &product.Variants[i]
		}
	}
	return nil
}
