package notifications

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

type fakeRepository struct {
	created    []models.Notification
	pending    []models.Notification
	sentIDs    []uuid.UUID
	failedIDs  []uuid.UUID
	lastReason string
	createErr  error
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, notification *models.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *notification)
	return nil
}

func (f *fakeRepository) ListPending(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeRepository) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error {
	f.sentIDs = append(f.sentIDs, id)
	return nil
}

func (f *fakeRepository) MarkFailed(ctx context.Context, id uuid.UUID, now time.Time, reason string) error {
	f.failedIDs = append(f.failedIDs, id)
	f.lastReason = reason
	return nil
}

type fakeSender struct {
	sent   []models.Notification
	failOn map[uuid.UUID]error
}

func (f *fakeSender) Send(ctx context.Context, notification models.Notification) error {
	if err, ok := f.failOn[notification.ID]; ok {
		return err
	}
	f.sent = append(f.sent, notification)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.ErrorLevel})
}

func TestEnqueueValidatesInput(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo, &fakeSender{}, testLogger())
	require.NoError(t, err)

	err = svc.Enqueue(context.Background(), nil, EnqueueInput{
		Kind:      enums.NotificationKindOrderReady,
		Recipient: "ana@example.com",
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	err = svc.Enqueue(context.Background(), nil, EnqueueInput{
		OrganizationID: uuid.New(),
		Kind:           enums.NotificationKind("postcard"),
		Recipient:      "ana@example.com",
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	err = svc.Enqueue(context.Background(), nil, EnqueueInput{
		OrganizationID: uuid.New(),
		Kind:           enums.NotificationKindOrderReady,
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	require.Empty(t, repo.created)
}

func TestEnqueueStoresRow(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo, &fakeSender{}, testLogger())
	require.NoError(t, err)

	orgID := uuid.New()
	orderID := uuid.New()
	err = svc.Enqueue(context.Background(), nil, EnqueueInput{
		OrganizationID: orgID,
		Kind:           enums.NotificationKindPaymentConfirmed,
		Recipient:      "ana@example.com",
		OrderID:        &orderID,
		Payload:        types.JSONMap{"order_number": "TG-104"},
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	require.Equal(t, orgID, repo.created[0].OrganizationID)
	require.Equal(t, enums.NotificationKindPaymentConfirmed, repo.created[0].Kind)
	require.Nil(t, repo.created[0].SentAt)
}

func TestDispatchPendingMarksOutcomes(t *testing.T) {
	good := models.Notification{ID: uuid.New(), Kind: enums.NotificationKindOrderReady, Recipient: "a@example.com"}
	bad := models.Notification{ID: uuid.New(), Kind: enums.NotificationKindOrderDelivered, Recipient: "b@example.com"}

	repo := &fakeRepository{pending: []models.Notification{good, bad}}
	sender := &fakeSender{failOn: map[uuid.UUID]error{bad.ID: errors.New("relay responded 502")}}
	svc, err := NewService(repo, sender, testLogger())
	require.NoError(t, err)

	result, err := svc.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.Sent)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, []uuid.UUID{good.ID}, repo.sentIDs)
	require.Equal(t, []uuid.UUID{bad.ID}, repo.failedIDs)
	require.Equal(t, "relay responded 502", repo.lastReason)
}

func TestHTTPSenderPostsRelayMessage(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(body)
		gotBody = body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender, err := NewHTTPSender(server.URL, "relay-key", testLogger())
	require.NoError(t, err)

	orderID := uuid.New()
	err = sender.Send(context.Background(), models.Notification{
		ID:        uuid.New(),
		Kind:      enums.NotificationKindPaymentLink,
		Recipient: "ana@example.com",
		OrderID:   &orderID,
		Payload:   types.JSONMap{"invoice_url": "https://pay.example.com/inv_1"},
	})
	require.NoError(t, err)
	require.Equal(t, "Bearer relay-key", gotAuth)
	require.Contains(t, string(gotBody), `"payment_link"`)
	require.Contains(t, string(gotBody), orderID.String())
}

func TestHTTPSenderRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender, err := NewHTTPSender(server.URL, "", testLogger())
	require.NoError(t, err)

	err = sender.Send(context.Background(), models.Notification{
		Kind:      enums.NotificationKindOTPCode,
		Recipient: "ana@example.com",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
