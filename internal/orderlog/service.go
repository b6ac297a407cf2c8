package orderlog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

// Service records the unbounded, append-only activity trail of an order.
// The capped status history on the order row is a cache; this is the record.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.OrderLog, error)
	List(ctx context.Context, orderID uuid.UUID) ([]models.OrderLog, error)
}

type service struct {
	repo Repository
}

// RecordInput captures the immutable data a log entry requires.
type RecordInput struct {
	OrganizationID uuid.UUID
	OrderID        uuid.UUID
	Action         enums.OrderLogAction
	ActorID        uuid.UUID
	ActorRole      enums.ActorRole
	Message        string
	Details        types.JSONMap
}

// NewService wires an order log service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order log repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.OrderLog, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, fmt.Errorf("actor id is required")
	}
	if !input.Action.IsValid() {
		return nil, fmt.Errorf("invalid order log action %q", input.Action)
	}
	if !input.ActorRole.IsValid() {
		return nil, fmt.Errorf("invalid actor role %q", input.ActorRole)
	}

	entry := &models.OrderLog{
		OrganizationID: input.OrganizationID,
		OrderID:        input.OrderID,
		Action:         input.Action,
		ActorID:        input.ActorID,
		ActorRole:      input.ActorRole,
		Message:        input.Message,
		Details:        input.Details,
	}

	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) List(ctx context.Context, orderID uuid.UUID) ([]models.OrderLog, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}
