package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/pkg/enums"
)

// Actor identifies the principal driving an operation.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// ItemInput is one requested line. UnitPriceCents is a pre-resolved price
// and is only honored for privileged actors or trusted channels; everyone
// else pays the catalog price loaded inside the builder transaction.
type ItemInput struct {
	ProductID      uuid.UUID
	VariantID      *uuid.UUID
	SizeID         *uuid.UUID
	Quantity       int
	UnitPriceCents *int64
	Note           *string
}

// CreateInput carries everything the order builder needs.
type CreateInput struct {
	OrganizationID uuid.UUID
	Channel        enums.OrderChannel
	Actor          Actor
	CustomerID     *uuid.UUID
	CustomerName   string
	CustomerEmail  *string
	CustomerPhone  *string
	Items          []ItemInput
	VoucherCode    *string
	ShippingCents  int64
	Note           *string
}

// ChangeStatusInput drives one fulfillment transition.
type ChangeStatusInput struct {
	OrganizationID uuid.UUID
	OrderID        uuid.UUID
	Next           enums.OrderStatus
	Actor          Actor
	Reason         string
}

// ChangePaymentStatusInput drives one payment-state transition, e.g. staff
// marking a cash order paid.
type ChangePaymentStatusInput struct {
	OrganizationID uuid.UUID
	OrderID        uuid.UUID
	Next           enums.PaymentStatus
	Actor          Actor
	Reason         string
}

// ListFilters describe the inputs supported by the order list.
type ListFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	Channel       *enums.OrderChannel
	DateFrom      *time.Time
	DateTo        *time.Time
	Query         string
}
