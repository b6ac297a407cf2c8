package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/api/middleware"
	"github.com/migueldlcruz/tindago-backend/api/responses"
	"github.com/migueldlcruz/tindago-backend/api/validators"
	internalorders "github.com/migueldlcruz/tindago-backend/internal/orders"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
	"github.com/migueldlcruz/tindago-backend/pkg/pagination"
)

type createOrderItem struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	SizeID    *uuid.UUID `json:"size_id"`
	Quantity  int        `json:"quantity" validate:"required,gte=1,lte=999"`
	Note      *string    `json:"note"`
}

type createOrderRequest struct {
	Channel       string            `json:"channel"`
	CustomerID    *uuid.UUID        `json:"customer_id"`
	CustomerName  string            `json:"customer_name" validate:"required,max=160"`
	CustomerEmail *string           `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone *string           `json:"customer_phone" validate:"omitempty,max=32"`
	Items         []createOrderItem `json:"items" validate:"required,min=1,dive"`
	VoucherCode   *string           `json:"voucher_code"`
	ShippingCents int64             `json:"shipping_cents" validate:"gte=0"`
	Note          *string           `json:"note"`
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type changePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required"`
	Reason        string `json:"reason" validate:"max=500"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Create builds an order from the dashboard. Prices always come from the
// catalog here; only the chat channel may carry pre-resolved prices, and
// that path never goes through this handler.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orgID, actor, err := principal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		channel := enums.OrderChannelWeb
		if raw := strings.TrimSpace(body.Channel); raw != "" {
			parsed, err := enums.ParseOrderChannel(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid channel"))
				return
			}
			channel = parsed
		}

		items := make([]internalorders.ItemInput, 0, len(body.Items))
		for _, item := range body.Items {
			items = append(items, internalorders.ItemInput{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				SizeID:    item.SizeID,
				Quantity:  item.Quantity,
				Note:      item.Note,
			})
		}

		order, err := svc.Create(r.Context(), internalorders.CreateInput{
			OrganizationID: orgID,
			Channel:        channel,
			Actor:          actor,
			CustomerID:     body.CustomerID,
			CustomerName:   validators.SanitizeString(body.CustomerName, 160),
			CustomerEmail:  body.CustomerEmail,
			CustomerPhone:  body.CustomerPhone,
			Items:          items,
			VoucherCode:    body.VoucherCode,
			ShippingCents:  body.ShippingCents,
			Note:           body.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// Get returns one order with line items and transition history.
func Get(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		order, err := svc.Get(r.Context(), orgID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}

// List returns a cursor page of the organization's orders.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orgID, _, err := principal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		filters, err := buildListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), orgID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

// ChangeStatus moves an order along the fulfillment lifecycle.
func ChangeStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		var body changeStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		next, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.ChangeStatus(r.Context(), internalorders.ChangeStatusInput{
			OrganizationID: orgID,
			OrderID:        orderID,
			Next:           next,
			Actor:          actor,
			Reason:         validators.SanitizeString(body.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}

// ChangePaymentStatus settles or refunds an order's balance by hand,
// e.g. cash on pickup.
func ChangePaymentStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		var body changePaymentStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		next, err := enums.ParsePaymentStatus(body.PaymentStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status"))
			return
		}

		order, err := svc.ChangePaymentStatus(r.Context(), internalorders.ChangePaymentStatusInput{
			OrganizationID: orgID,
			OrderID:        orderID,
			Next:           next,
			Actor:          actor,
			Reason:         validators.SanitizeString(body.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}

// Cancel is sugar over ChangeStatus: it always targets CANCELLED and
// requires a reason for the order log.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		var body cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ChangeStatus(r.Context(), internalorders.ChangeStatusInput{
			OrganizationID: orgID,
			OrderID:        orderID,
			Next:           enums.OrderStatusCancelled,
			Actor:          actor,
			Reason:         validators.SanitizeString(body.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}

func principal(r *http.Request) (uuid.UUID, internalorders.Actor, error) {
	orgID, err := uuid.Parse(middleware.OrganizationIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, internalorders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization missing from context")
	}
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, internalorders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user missing from context")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, internalorders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing from context")
	}
	return orgID, internalorders.Actor{ID: userID, Role: role}, nil
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

func buildListFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status filter")
		}
		filters.PaymentStatus = &status
	}
	if raw := strings.TrimSpace(query.Get("channel")); raw != "" {
		channel, err := enums.ParseOrderChannel(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid channel filter")
		}
		filters.Channel = &channel
	}
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from filter")
		}
		filters.DateFrom = &from
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to filter")
		}
		filters.DateTo = &to
	}
	filters.Query = validators.SanitizeString(query.Get("q"), 120)

	return filters, nil
}
