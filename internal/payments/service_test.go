package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/internal/audit"
	"github.com/migueldlcruz/tindago-backend/internal/orders"
	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	dbtypes "github.com/migueldlcruz/tindago-backend/pkg/db/types"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
)

type stubPaymentsTx struct{}

func (stubPaymentsTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakePaymentsRepo struct {
	created      []models.Payment
	createErr    error
	existsErr    error
	ordersByNum  map[int64][]models.Order
	sessionsByID map[uuid.UUID]*models.CheckoutSession
}

func newFakePaymentsRepo() *fakePaymentsRepo {
	return &fakePaymentsRepo{
		ordersByNum:  make(map[int64][]models.Order),
		sessionsByID: make(map[uuid.UUID]*models.CheckoutSession),
	}
}

func (f *fakePaymentsRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakePaymentsRepo) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *payment)
	return nil
}

func (f *fakePaymentsRepo) PaymentExists(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider, txnID string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	for _, p := range f.created {
		if p.OrderID == orderID && p.Provider == provider && p.ProviderTxnID == txnID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentsRepo) OrdersByNumber(ctx context.Context, number int64) ([]models.Order, error) {
	return f.ordersByNum[number], nil
}

func (f *fakePaymentsRepo) OrdersByNumbers(ctx context.Context, numbers []int64) ([]models.Order, error) {
	var out []models.Order
	for _, n := range numbers {
		out = append(out, f.ordersByNum[n]...)
	}
	return out, nil
}

func (f *fakePaymentsRepo) SessionByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	session, ok := f.sessionsByID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return session, nil
}

func (f *fakePaymentsRepo) PaymentsByOrder(ctx context.Context, organizationID, orderID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range f.created {
		if p.OrganizationID == organizationID && p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

type appliedPayment struct {
	orderID uuid.UUID
	amount  int64
}

type stubOrderEngine struct {
	orders    map[uuid.UUID]*models.Order
	applied   []appliedPayment
	cancelled []uuid.UUID
}

func (s *stubOrderEngine) FindByIDsTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Order, error) {
	out := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		if order, ok := s.orders[id]; ok {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *stubOrderEngine) ApplyPaymentTx(ctx context.Context, tx *gorm.DB, order *models.Order, amountCents int64, actor orders.Actor) error {
	s.applied = append(s.applied, appliedPayment{orderID: order.ID, amount: amountCents})
	return nil
}

func (s *stubOrderEngine) CancelTx(ctx context.Context, tx *gorm.DB, order *models.Order, actor orders.Actor, reason string) error {
	s.cancelled = append(s.cancelled, order.ID)
	return nil
}

type stubSessionGuard struct {
	sessions  map[string]*models.CheckoutSession
	paid      int
	cancelled int
}

func (s *stubSessionGuard) FindByToken(ctx context.Context, tx *gorm.DB, token string) (*models.CheckoutSession, error) {
	session, ok := s.sessions[token]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	return session, nil
}

func (s *stubSessionGuard) MarkPaidTx(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, now time.Time) (bool, error) {
	s.paid++
	session.Status = enums.CheckoutSessionStatusPaid
	return true, nil
}

func (s *stubSessionGuard) MarkCancelledTx(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, now time.Time) (bool, error) {
	s.cancelled++
	session.Status = enums.CheckoutSessionStatusCancelled
	return true, nil
}

type stubXenditVerifier struct{ ok bool }

func (s stubXenditVerifier) VerifyCallbackToken(header string) bool { return s.ok }

type stubPayMongoVerifier struct{ err error }

func (s stubPayMongoVerifier) VerifySignature(header string, body []byte, now time.Time) error {
	return s.err
}

type recordedAudit struct {
	entries []audit.Entry
}

func (r *recordedAudit) Record(ctx context.Context, entry audit.Entry) {
	r.entries = append(r.entries, entry)
}

func (r *recordedAudit) RecordTx(ctx context.Context, tx *gorm.DB, entry audit.Entry) {
	r.entries = append(r.entries, entry)
}

func (r *recordedAudit) events() []string {
	out := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Event)
	}
	return out
}

type paymentsFixture struct {
	svc      Service
	repo     *fakePaymentsRepo
	orders   *stubOrderEngine
	sessions *stubSessionGuard
	xendit   *stubXenditVerifier
	paymongo *stubPayMongoVerifier
	audit    *recordedAudit
}

func newPaymentsFixture(t *testing.T) *paymentsFixture {
	t.Helper()

	f := &paymentsFixture{
		repo:     newFakePaymentsRepo(),
		orders:   &stubOrderEngine{orders: make(map[uuid.UUID]*models.Order)},
		sessions: &stubSessionGuard{sessions: make(map[string]*models.CheckoutSession)},
		xendit:   &stubXenditVerifier{ok: true},
		paymongo: &stubPayMongoVerifier{},
		audit:    &recordedAudit{},
	}

	svc, err := NewService(
		f.repo, stubPaymentsTx{}, f.orders, f.sessions, f.xendit, f.paymongo, f.audit,
		logger.New(logger.Options{Level: zerolog.ErrorLevel}), uuid.New(),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

// groupedSession wires two orders of 1000 and 500 centavos into one session.
func groupedSession(f *paymentsFixture) (*models.CheckoutSession, *models.Order, *models.Order) {
	orgID := uuid.New()
	sessionID := uuid.New()
	first := &models.Order{ID: uuid.New(), OrganizationID: orgID, OrderNumber: 7,
		TotalCents: 1000, SessionID: &sessionID}
	second := &models.Order{ID: uuid.New(), OrganizationID: orgID, OrderNumber: 9,
		TotalCents: 500, SessionID: &sessionID}
	f.orders.orders[first.ID] = first
	f.orders.orders[second.ID] = second
	f.repo.ordersByNum[7] = []models.Order{*first}
	f.repo.ordersByNum[9] = []models.Order{*second}

	session := &models.CheckoutSession{
		ID:             sessionID,
		OrganizationID: orgID,
		MemberOrderIDs: dbtypes.UUIDArray{first.ID, second.ID},
		Token:          uuid.NewString(),
		Status:         enums.CheckoutSessionStatusPending,
		AmountCents:    1500,
		ExpiresAt:      time.Now().UTC().Add(time.Hour),
	}
	f.sessions.sessions[session.Token] = session
	f.repo.sessionsByID[session.ID] = session
	return session, first, second
}

func xenditCallbackBody(externalID, status string, amount int64) []byte {
	return fmt.Appendf(nil, `{"id":"inv_abc","external_id":%q,"status":%q,"amount":%d,"paid_amount":%d,"fees_paid_amount":45}`,
		externalID, status, amount, amount)
}

func paymongoEventBody(eventType, reference, description string, amount int64) []byte {
	return fmt.Appendf(nil, `{"data":{"id":"evt_1","attributes":{"type":%q,"data":{"id":"pay_1","attributes":{"amount":%d,"fee":45,"description":%q,"reference_number":%q,"status":"paid"}}}}}`,
		eventType, amount, description, reference)
}

func TestXenditCallbackTokenMismatch(t *testing.T) {
	f := newPaymentsFixture(t)
	f.xendit.ok = false

	_, err := f.svc.HandleXenditCallback(context.Background(), "wrong",
		xenditCallbackBody("42", "PAID", 1000))
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
	require.Contains(t, f.audit.events(), "payments.webhook_unauthorized")
	require.Empty(t, f.repo.created)
}

func TestXenditGroupedPaymentSplitsAcrossOrders(t *testing.T) {
	f := newPaymentsFixture(t)
	session, first, second := groupedSession(f)

	result, err := f.svc.HandleXenditCallback(context.Background(), "secret",
		xenditCallbackBody("checkout-"+session.Token, "PAID", 1500))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, result.Outcome)
	require.Equal(t, 2, result.Orders)

	require.Len(t, f.repo.created, 2)
	byOrder := map[uuid.UUID]models.Payment{}
	for _, p := range f.repo.created {
		byOrder[p.OrderID] = p
	}
	require.EqualValues(t, 1000, byOrder[first.ID].AmountCents)
	require.EqualValues(t, 500, byOrder[second.ID].AmountCents)
	require.Equal(t, enums.PaymentRecordStatusVerified, byOrder[first.ID].Status)
	require.Equal(t, "inv_abc", byOrder[first.ID].ProviderTxnID)
	require.NotNil(t, byOrder[first.ID].CheckoutSessionID)

	require.Len(t, f.orders.applied, 2)
	require.Equal(t, 1, f.sessions.paid)
	require.Contains(t, f.audit.events(), "payments.settled")
}

func TestXenditDuplicateDeliveryIsNoOp(t *testing.T) {
	f := newPaymentsFixture(t)
	session, _, _ := groupedSession(f)

	result, err := f.svc.HandleXenditCallback(context.Background(), "secret",
		xenditCallbackBody("checkout-"+session.Token, "PAID", 1500))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, result.Outcome)
	require.Len(t, f.repo.created, 2)
	require.Len(t, f.orders.applied, 2)

	// The redelivery is caught by the payment-record lookup before any
	// write happens, so nothing is inserted or applied twice.
	result, err = f.svc.HandleXenditCallback(context.Background(), "secret",
		xenditCallbackBody("checkout-"+session.Token, "PAID", 1500))
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, result.Outcome)
	require.Len(t, f.repo.created, 2)
	require.Len(t, f.orders.applied, 2)
	require.Equal(t, 1, f.sessions.paid)
}

func TestXenditGroupedSplitWeighsOutstandingBalance(t *testing.T) {
	f := newPaymentsFixture(t)
	session, first, second := groupedSession(f)

	// First order already has 600 on record, so 400 of the 900 delivery
	// goes to it and the second order's full 500 balance takes the rest.
	f.orders.orders[first.ID].PaidCents = 600

	result, err := f.svc.HandleXenditCallback(context.Background(), "secret",
		xenditCallbackBody("checkout-"+session.Token, "PAID", 900))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, result.Outcome)

	byOrder := map[uuid.UUID]models.Payment{}
	for _, p := range f.repo.created {
		byOrder[p.OrderID] = p
	}
	require.EqualValues(t, 400, byOrder[first.ID].AmountCents)
	require.EqualValues(t, 500, byOrder[second.ID].AmountCents)
}

func TestXenditConcurrentFirstDeliveryLosesRace(t *testing.T) {
	f := newPaymentsFixture(t)
	session, _, _ := groupedSession(f)
	// The loser of a concurrent first delivery sees no existing record but
	// trips the unique index on insert; the transaction rolls back and the
	// delivery is acknowledged as a duplicate.
	f.repo.createErr = errors.New(`duplicate key value violates unique constraint "idx_payments_order_provider_txn"`)

	result, err := f.svc.HandleXenditCallback(context.Background(), "secret",
		xenditCallbackBody("checkout-"+session.Token, "PAID", 1500))
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, result.Outcome)
	require.Empty(t, f.repo.created)
	require.Empty(t, f.orders.applied)
	require.Zero(t, f.sessions.paid)
}

func TestXenditExpiryCancelsUnpaidOrdersOnly(t *testing.T) {
	f := newPaymentsFixture(t)
	session, first, second := groupedSession(f)
	f.orders.orders[first.ID].PaymentStatus = enums.PaymentStatusPaid
	f.orders.orders[first.ID].PaidCents = first.TotalCents

	result, err := f.svc.HandleXenditCallback(context.Background(), "secret",
		xenditCallbackBody("checkout-"+session.Token, "EXPIRED", 1500))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, result.Outcome)
	require.Equal(t, 1, result.Orders)
	require.Equal(t, []uuid.UUID{second.ID}, f.orders.cancelled)
	require.Equal(t, 1, f.sessions.cancelled)
	require.Contains(t, f.audit.events(), "payments.abandoned")
}

func TestXenditUnknownStatusIsIgnored(t *testing.T) {
	f := newPaymentsFixture(t)

	result, err := f.svc.HandleXenditCallback(context.Background(), "secret",
		xenditCallbackBody("42", "PENDING", 1000))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, result.Outcome)
	require.Empty(t, f.repo.created)
}

func TestPayMongoSignatureMismatch(t *testing.T) {
	f := newPaymentsFixture(t)
	f.paymongo.err = pkgerrors.NewSecurity(pkgerrors.CodeUnauthorized, "paymongo signature mismatch")

	_, err := f.svc.HandlePayMongoEvent(context.Background(), "t=1,te=bad",
		paymongoEventBody("payment.paid", "42", "", 1000))
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
	require.Contains(t, f.audit.events(), "payments.webhook_unauthorized")
}

func TestPayMongoBareOrderNumberSettlesSingleOrder(t *testing.T) {
	f := newPaymentsFixture(t)
	order := &models.Order{ID: uuid.New(), OrganizationID: uuid.New(), OrderNumber: 42, TotalCents: 2500}
	f.orders.orders[order.ID] = order
	f.repo.ordersByNum[42] = []models.Order{*order}

	result, err := f.svc.HandlePayMongoEvent(context.Background(), "t=1,te=ok",
		paymongoEventBody("payment.paid", "42", "", 2500))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, result.Outcome)
	require.Equal(t, 1, result.Orders)

	require.Len(t, f.repo.created, 1)
	require.EqualValues(t, 2500, f.repo.created[0].AmountCents)
	require.Equal(t, enums.PaymentProviderPayMongo, f.repo.created[0].Provider)
	require.Equal(t, "pay_1", f.repo.created[0].ProviderTxnID)
	require.Nil(t, f.repo.created[0].CheckoutSessionID)
	require.Equal(t, []appliedPayment{{orderID: order.ID, amount: 2500}}, f.orders.applied)
}

func TestPayMongoCheckoutSessionPaidSettles(t *testing.T) {
	f := newPaymentsFixture(t)
	order := &models.Order{ID: uuid.New(), OrganizationID: uuid.New(), OrderNumber: 42, TotalCents: 2500}
	f.orders.orders[order.ID] = order
	f.repo.ordersByNum[42] = []models.Order{*order}

	result, err := f.svc.HandlePayMongoEvent(context.Background(), "t=1,te=ok",
		paymongoEventBody("checkout_session.payment.paid", "42", "", 2500))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, result.Outcome)
	require.Len(t, f.repo.created, 1)
	require.Equal(t, []appliedPayment{{orderID: order.ID, amount: 2500}}, f.orders.applied)
}

func TestPayMongoUnknownEventTypeIsIgnored(t *testing.T) {
	f := newPaymentsFixture(t)

	result, err := f.svc.HandlePayMongoEvent(context.Background(), "t=1,te=ok",
		paymongoEventBody("customer.updated", "", "", 0))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, result.Outcome)
}

func TestDescriptionFallbackMatchesSessionMemberSet(t *testing.T) {
	f := newPaymentsFixture(t)
	_, first, second := groupedSession(f)

	result, err := f.svc.HandlePayMongoEvent(context.Background(), "t=1,te=ok",
		paymongoEventBody("payment.paid", "", "Payment for orders #7 and #9", 1500))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, result.Outcome)
	require.Equal(t, 2, result.Orders)

	byOrder := map[uuid.UUID]models.Payment{}
	for _, p := range f.repo.created {
		byOrder[p.OrderID] = p
	}
	require.EqualValues(t, 1000, byOrder[first.ID].AmountCents)
	require.EqualValues(t, 500, byOrder[second.ID].AmountCents)
}

func TestDescriptionFallbackRefusesPartialMemberSet(t *testing.T) {
	f := newPaymentsFixture(t)
	groupedSession(f)

	// Only one of the two member orders is named; the reconciler must
	// refuse rather than guess.
	_, err := f.svc.HandlePayMongoEvent(context.Background(), "t=1,te=ok",
		paymongoEventBody("payment.paid", "", "Payment for order #7", 1000))
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	require.Empty(t, f.repo.created)
}

func TestPayMongoFailureEventCancelsOrder(t *testing.T) {
	f := newPaymentsFixture(t)
	order := &models.Order{ID: uuid.New(), OrganizationID: uuid.New(), OrderNumber: 42, TotalCents: 2500}
	f.orders.orders[order.ID] = order
	f.repo.ordersByNum[42] = []models.Order{*order}

	result, err := f.svc.HandlePayMongoEvent(context.Background(), "t=1,te=ok",
		paymongoEventBody("payment.failed", "42", "", 2500))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, result.Outcome)
	require.Equal(t, []uuid.UUID{order.ID}, f.orders.cancelled)
}

func TestUnresolvableReferenceIsNotFound(t *testing.T) {
	f := newPaymentsFixture(t)

	_, err := f.svc.HandleXenditCallback(context.Background(), "secret",
		xenditCallbackBody("99", "PAID", 1000))
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestRecordManualPaymentRequiresPrivilege(t *testing.T) {
	f := newPaymentsFixture(t)

	_, err := f.svc.RecordManualPayment(context.Background(), ManualPaymentInput{
		OrganizationID: uuid.New(),
		OrderID:        uuid.New(),
		AmountCents:    1000,
		Reference:      "BANK-001",
		Actor:          orders.Actor{ID: uuid.New(), Role: enums.ActorRoleCustomer},
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
}

func TestRecordManualPaymentCreatesVerifiedRecord(t *testing.T) {
	f := newPaymentsFixture(t)
	order := &models.Order{ID: uuid.New(), OrganizationID: uuid.New(), OrderNumber: 11, TotalCents: 3000}
	f.orders.orders[order.ID] = order
	actor := orders.Actor{ID: uuid.New(), Role: enums.ActorRoleStaff}

	payment, err := f.svc.RecordManualPayment(context.Background(), ManualPaymentInput{
		OrganizationID: order.OrganizationID,
		OrderID:        order.ID,
		AmountCents:    3000,
		Reference:      "BANK-001",
		Actor:          actor,
	})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentProviderManual, payment.Provider)
	require.Equal(t, "BANK-001", payment.ProviderTxnID)
	require.Equal(t, enums.PaymentRecordStatusVerified, payment.Status)
	require.Equal(t, actor.ID, payment.RecordedBy)
	require.Equal(t, []appliedPayment{{orderID: order.ID, amount: 3000}}, f.orders.applied)
	require.Contains(t, f.audit.events(), "payments.manual_recorded")
}

func TestRecordManualPaymentDuplicateReference(t *testing.T) {
	f := newPaymentsFixture(t)
	order := &models.Order{ID: uuid.New(), OrganizationID: uuid.New(), OrderNumber: 11, TotalCents: 3000}
	f.orders.orders[order.ID] = order
	f.repo.createErr = errors.New(`duplicate key value violates unique constraint "idx_payments_order_provider_txn"`)

	_, err := f.svc.RecordManualPayment(context.Background(), ManualPaymentInput{
		OrganizationID: order.OrganizationID,
		OrderID:        order.ID,
		AmountCents:    3000,
		Reference:      "BANK-001",
		Actor:          orders.Actor{ID: uuid.New(), Role: enums.ActorRoleStaff},
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeIdempotency, pkgerrors.CodeOf(err))
	require.Empty(t, f.orders.applied)
}
