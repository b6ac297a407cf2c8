package orderlog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
)

type stubLogRepo struct {
	entries []*models.OrderLog
}

func (s *stubLogRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubLogRepo) Create(_ context.Context, entry *models.OrderLog) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubLogRepo) ListByOrderID(_ context.Context, orderID uuid.UUID) ([]models.OrderLog, error) {
	var out []models.OrderLog
	for _, e := range s.entries {
		if e.OrderID == orderID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func TestRecordValidatesInput(t *testing.T) {
	t.Parallel()

	repo := &stubLogRepo{}
	svc, err := NewService(repo)
	require.NoError(t, err)

	valid := RecordInput{
		OrganizationID: uuid.New(),
		OrderID:        uuid.New(),
		Action:         enums.OrderLogActionStatusChanged,
		ActorID:        uuid.New(),
		ActorRole:      enums.ActorRoleStaff,
		Message:        "status changed from PENDING to PROCESSING",
	}

	entry, err := svc.Record(context.Background(), nil, valid)
	require.NoError(t, err)
	require.Equal(t, valid.OrderID, entry.OrderID)
	require.Len(t, repo.entries, 1)

	missingOrder := valid
	missingOrder.OrderID = uuid.Nil
	_, err = svc.Record(context.Background(), nil, missingOrder)
	require.Error(t, err)

	badAction := valid
	badAction.Action = "launched"
	_, err = svc.Record(context.Background(), nil, badAction)
	require.Error(t, err)
}

func TestListScopesToOrder(t *testing.T) {
	t.Parallel()

	repo := &stubLogRepo{}
	svc, err := NewService(repo)
	require.NoError(t, err)

	orderA := uuid.New()
	orderB := uuid.New()
	for _, orderID := range []uuid.UUID{orderA, orderA, orderB} {
		_, err := svc.Record(context.Background(), nil, RecordInput{
			OrganizationID: uuid.New(),
			OrderID:        orderID,
			Action:         enums.OrderLogActionCreated,
			ActorID:        uuid.New(),
			ActorRole:      enums.ActorRoleSystem,
			Message:        "order created",
		})
		require.NoError(t, err)
	}

	entries, err := svc.List(context.Background(), orderA)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
