package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
	"github.com/migueldlcruz/tindago-backend/pkg/types"
)

// Entry describes one operational or security event.
type Entry struct {
	OrganizationID *uuid.UUID
	Severity       enums.AuditSeverity
	Event          string
	ActorID        *uuid.UUID
	SubjectType    string
	SubjectID      *uuid.UUID
	Details        types.JSONMap
}

// Service records audit events. Recording is fire-and-forget: a failed
// write is logged and swallowed so it can never block the action it
// describes.
type Service interface {
	Record(ctx context.Context, entry Entry)
	RecordTx(ctx context.Context, tx *gorm.DB, entry Entry)
}

type service struct {
	db     *gorm.DB
	logger *logger.Logger
}

// NewService wires an audit service with the provided database handle.
func NewService(db *gorm.DB, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("audit database required")
	}
	if logg == nil {
		return nil, fmt.Errorf("audit logger required")
	}
	return &service{db: db, logger: logg}, nil
}

func (s *service) Record(ctx context.Context, entry Entry) {
	s.RecordTx(ctx, nil, entry)
}

func (s *service) RecordTx(ctx context.Context, tx *gorm.DB, entry Entry) {
	if entry.Event == "" {
		s.logger.Warn(ctx, "audit entry dropped: empty event name")
		return
	}
	severity := entry.Severity
	if !severity.IsValid() {
		severity = enums.AuditSeverityInfo
	}

	row := &models.AuditEvent{
		OrganizationID: entry.OrganizationID,
		Severity:       severity,
		Event:          entry.Event,
		ActorID:        entry.ActorID,
		SubjectID:      entry.SubjectID,
		Details:        entry.Details,
	}
	if entry.SubjectType != "" {
		row.SubjectType = &entry.SubjectType
	}

	db := s.db
	if tx != nil {
		db = tx
	}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		s.logger.Error(s.logger.WithField(ctx, "event", entry.Event), "audit write failed", err)
		return
	}

	if severity == enums.AuditSeveritySecurity {
		s.logger.Security(s.logger.WithField(ctx, "event", entry.Event), "security event recorded")
	}
}
