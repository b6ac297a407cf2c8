package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
)

// Line is one requested stock movement. The most specific tracked counter
// gates availability (size over variant); every tracked level is deducted.
type Line struct {
	VariantID uuid.UUID
	SizeID    *uuid.UUID
	Quantity  int
}

// Service reserves and restores stock counters. Reserve runs inside the
// order-creation transaction so a failed order never leaks a deduction.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, lines []Line) error
	Restore(ctx context.Context, tx *gorm.DB, lines []Line)
}

type service struct {
	repo   Repository
	logger *logger.Logger
}

// NewService wires an inventory service with the provided repository.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("inventory logger required")
	}
	return &service{repo: repo, logger: logg}, nil
}

func (s *service) Reserve(ctx context.Context, tx *gorm.DB, lines []Line) error {
	repo := s.repo.WithTx(tx)

	for _, line := range groupLines(lines) {
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
		}

		if line.SizeID != nil {
			size, err := repo.FindSize(ctx, *line.SizeID)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return pkgerrors.New(pkgerrors.CodeNotFound, "size not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load size")
			}
			if !size.StockType.Tracked() {
				continue
			}
			ok, err := repo.DeductSize(ctx, size.ID, line.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deduct size stock")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
					WithDetails(map[string]any{"size_id": size.ID, "requested": line.Quantity})
			}

			// The size admitted the sale; keep the coarser variant
			// counter in step so it never over-reports availability.
			variant, err := repo.FindVariant(ctx, line.VariantID)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
			}
			if variant.StockType.Tracked() {
				if err := repo.DrainVariant(ctx, variant.ID, line.Quantity); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drain variant stock")
				}
			}
			continue
		}

		variant, err := repo.FindVariant(ctx, line.VariantID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}
		if !variant.StockType.Tracked() {
			continue
		}
		ok, err := repo.DeductVariant(ctx, variant.ID, line.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deduct variant stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
				WithDetails(map[string]any{"variant_id": variant.ID, "requested": line.Quantity})
		}
	}
	return nil
}

// Restore reverses a reservation. Failures are logged, never returned: the
// cancellation that triggered the restore must still complete.
func (s *service) Restore(ctx context.Context, tx *gorm.DB, lines []Line) {
	repo := s.repo.WithTx(tx)

	var errs error
	for _, line := range groupLines(lines) {
		if line.Quantity <= 0 {
			continue
		}

		if line.SizeID != nil {
			if err := repo.RestoreSize(ctx, *line.SizeID, line.Quantity); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("size %s: %w", line.SizeID, err))
			}
		}
		if err := repo.RestoreVariant(ctx, line.VariantID, line.Quantity); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("variant %s: %w", line.VariantID, err))
		}
	}
	if errs != nil {
		s.logger.Warn(s.logger.WithField(ctx, "error", errs.Error()), "stock restore incomplete")
	}
}

// groupLines collapses duplicate targets so a single guarded update covers
// the whole requested quantity.
func groupLines(lines []Line) []Line {
	type key struct {
		variantID uuid.UUID
		sizeID    uuid.UUID
		hasSize   bool
	}

	order := make([]key, 0, len(lines))
	grouped := map[key]Line{}
	for _, line := range lines {
		k := key{variantID: line.VariantID}
		if line.SizeID != nil {
			k.sizeID = *line.SizeID
			k.hasSize = true
		}
		existing, ok := grouped[k]
		if !ok {
			order = append(order, k)
			grouped[k] = line
			continue
		}
		existing.Quantity += line.Quantity
		grouped[k] = existing
	}

	out := make([]Line, 0, len(grouped))
	for _, k := range order {
		out = append(out, grouped[k])
	}
	return out
}
