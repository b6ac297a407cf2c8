package payments

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/api/middleware"
	"github.com/migueldlcruz/tindago-backend/api/responses"
	"github.com/migueldlcruz/tindago-backend/api/validators"
	"github.com/migueldlcruz/tindago-backend/internal/orders"
	internalpayments "github.com/migueldlcruz/tindago-backend/internal/payments"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
)

type manualPaymentRequest struct {
	AmountCents int64   `json:"amount_cents" validate:"required,gt=0"`
	Reference   string  `json:"reference" validate:"required,max=120"`
	Note        *string `json:"note"`
}

// RecordManual records an out-of-band payment, e.g. a bank transfer the
// merchant confirmed by hand.
func RecordManual(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		orgID, actor, err := principal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body manualPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.RecordManualPayment(r.Context(), internalpayments.ManualPaymentInput{
			OrganizationID: orgID,
			OrderID:        orderID,
			AmountCents:    body.AmountCents,
			Reference:      validators.SanitizeString(body.Reference, 120),
			Note:           body.Note,
			Actor:          actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, payment)
	}
}

// ListByOrder returns every payment record attached to an order.
func ListByOrder(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		orgID, _, err := principal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := svc.ListByOrder(r.Context(), orgID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, records)
	}
}

func principal(r *http.Request) (uuid.UUID, orders.Actor, error) {
	orgID, err := uuid.Parse(middleware.OrganizationIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization missing from context")
	}
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user missing from context")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing from context")
	}
	return orgID, orders.Actor{ID: userID, Role: role}, nil
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
