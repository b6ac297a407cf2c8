package checkout

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/api/middleware"
	"github.com/migueldlcruz/tindago-backend/api/responses"
	"github.com/migueldlcruz/tindago-backend/api/validators"
	internalcheckout "github.com/migueldlcruz/tindago-backend/internal/checkout"
	"github.com/migueldlcruz/tindago-backend/internal/orders"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
	"github.com/migueldlcruz/tindago-backend/pkg/security"
)

type createSessionRequest struct {
	OrderIDs   []uuid.UUID `json:"order_ids" validate:"required,min=1,max=20"`
	CustomerID *uuid.UUID  `json:"customer_id"`
	GuestEmail *string     `json:"guest_email" validate:"omitempty,email"`
}

type createInvoiceRequest struct {
	Provider string  `json:"provider" validate:"required"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

// CreateSession opens a payment window over one or more orders. Staff
// only; the returned token is what the customer gets sent.
func CreateSession(svc internalcheckout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		orgID, actor, err := principal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createSessionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreateSession(r.Context(), internalcheckout.CreateInput{
			OrganizationID: orgID,
			OrderIDs:       body.OrderIDs,
			CustomerID:     body.CustomerID,
			GuestEmail:     body.GuestEmail,
			Actor:          actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// GetSession returns the session behind a checkout token. Unauthenticated:
// possession of the token plus the matching guest email is the proof of
// ownership.
func GetSession(svc internalcheckout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		token, err := parseToken(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var guestEmail *string
		if raw := strings.TrimSpace(r.URL.Query().Get("email")); raw != "" {
			guestEmail = &raw
		}

		actor, customerID := optionalPrincipal(r)
		session, err := svc.GetSession(r.Context(), token, actor, customerID, guestEmail)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, session)
	}
}

// CreateInvoice mints (or returns the already-minted) provider invoice
// for a session.
func CreateInvoice(svc internalcheckout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		token, err := parseToken(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createInvoiceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		provider, err := enums.ParsePaymentProvider(body.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider"))
			return
		}

		actor, customerID := optionalPrincipal(r)
		invoice, err := svc.CreateOrGetInvoice(r.Context(), internalcheckout.InvoiceInput{
			Token:      token,
			Provider:   provider,
			CustomerID: customerID,
			GuestEmail: body.Email,
			Actor:      actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, invoice)
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

// optionalPrincipal reads the authenticated caller seeded by OptionalAuth.
// An anonymous request acts as a guest customer; an authenticated customer
// carries their own ID so customer-bound sessions resolve.
func optionalPrincipal(r *http.Request) (orders.Actor, *uuid.UUID) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return orders.Actor{Role: enums.ActorRoleCustomer}, nil
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return orders.Actor{Role: enums.ActorRoleCustomer}, nil
	}
	actor := orders.Actor{ID: userID, Role: role}
	if role == enums.ActorRoleCustomer {
		return actor, &userID
	}
	return actor, nil
}

func parseToken(r *http.Request) (string, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "token"))
	if _, err := security.ValidateSessionToken(raw); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout token")
	}
	return raw, nil
}
