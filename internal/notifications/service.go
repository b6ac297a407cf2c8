package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

const defaultDispatchBatch = 50

// Sender delivers a single notification to its recipient. Implementations
// return an error when delivery failed and the row should be marked failed.
type Sender interface {
	Send(ctx context.Context, notification models.Notification) error
}

// Service queues outbound notifications and drains the queue.
type Service interface {
	Enqueue(ctx context.Context, tx *gorm.DB, input EnqueueInput) error
	DispatchPending(ctx context.Context, batchSize int) (DispatchResult, error)
}

type service struct {
	repo   Repository
	sender Sender
	logger *logger.Logger
}

// EnqueueInput describes a notification to queue. Enqueue is expected to be
// called inside the transaction that produced the event it announces.
type EnqueueInput struct {
	OrganizationID uuid.UUID
	Kind           enums.NotificationKind
	Recipient      string
	OrderID        *uuid.UUID
	Payload        types.JSONMap
}

// DispatchResult counts the outcome of one drain pass.
type DispatchResult struct {
	Sent   int
	Failed int
}

// NewService wires notification dependencies.
func NewService(repo Repository, sender Sender, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications sender required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications logger required")
	}
	return &service{repo: repo, sender: sender, logger: logg}, nil
}

func (s *service) Enqueue(ctx context.Context, tx *gorm.DB, input EnqueueInput) error {
	if input.OrganizationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}
	if !input.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid notification kind")
	}
	if input.Recipient == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification recipient required")
	}

	notification := models.Notification{
		OrganizationID: input.OrganizationID,
		Kind:           input.Kind,
		Recipient:      input.Recipient,
		OrderID:        input.OrderID,
		Payload:        input.Payload,
	}
	if err := s.repo.WithTx(tx).Create(ctx, &notification); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue notification")
	}
	return nil
}

func (s *service) DispatchPending(ctx context.Context, batchSize int) (DispatchResult, error) {
	if batchSize <= 0 {
		batchSize = defaultDispatchBatch
	}

	rows, err := s.repo.ListPending(ctx, batchSize)
	if err != nil {
		return DispatchResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending notifications")
	}

	var result DispatchResult
	for _, row := range rows {
		now := time.Now().UTC()
		if sendErr := s.sender.Send(ctx, row); sendErr != nil {
			result.Failed++
			logCtx := s.logger.WithFields(ctx, map[string]any{
				"notification_id": row.ID.String(),
				"kind":            row.Kind.String(),
			})
			s.logger.Warn(logCtx, "notification delivery failed")
			if markErr := s.repo.MarkFailed(ctx, row.ID, now, sendErr.Error()); markErr != nil {
				s.logger.Error(ctx, "mark notification failed", markErr)
			}
			continue
		}
		result.Sent++
		if markErr := s.repo.MarkSent(ctx, row.ID, now); markErr != nil {
			s.logger.Error(ctx, "mark notification sent", markErr)
		}
	}
	return result, nil
}
