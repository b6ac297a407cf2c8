package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migueldlcruz/tindago-backend/api/middleware"
	internalorders "github.com/migueldlcruz/tindago-backend/internal/orders"
	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/enums"
	"github.com/migueldlcruz/tindago-backend/pkg/pagination"
)

type stubOrderService struct {
	createInput        *internalorders.CreateInput
	statusInput        *internalorders.ChangeStatusInput
	paymentStatusInput *internalorders.ChangePaymentStatusInput
	listFilters        *internalorders.ListFilters
	order              *models.Order
	err                error
}

func (s *stubOrderService) Create(_ context.Context, input internalorders.CreateInput) (*models.Order, error) {
	s.createInput = &input
	return s.order, s.err
}

func (s *stubOrderService) Get(_ context.Context, _, _ uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) GetByNumber(_ context.Context, _ uuid.UUID, _ int64) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) List(_ context.Context, _ uuid.UUID, _ pagination.Params, filters internalorders.ListFilters) (*internalorders.ListResult, error) {
	s.listFilters = &filters
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.ListResult{}, nil
}

func (s *stubOrderService) ChangeStatus(_ context.Context, input internalorders.ChangeStatusInput) (*models.Order, error) {
	s.statusInput = &input
	return s.order, s.err
}

func (s *stubOrderService) ChangePaymentStatus(_ context.Context, input internalorders.ChangePaymentStatusInput) (*models.Order, error) {
	s.paymentStatusInput = &input
	return s.order, s.err
}

func (s *stubOrderService) FindByIDsTx(_ context.Context, _ *gorm.DB, _ []uuid.UUID) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrderService) ApplyPaymentTx(_ context.Context, _ *gorm.DB, _ *models.Order, _ int64, _ internalorders.Actor) error {
	return nil
}

func (s *stubOrderService) CancelTx(_ context.Context, _ *gorm.DB, _ *models.Order, _ internalorders.Actor, _ string) error {
	return nil
}

func (s *stubOrderService) AttachInvoiceTx(_ context.Context, _ *gorm.DB, _ []models.Order, _, _ string, _ internalorders.Actor) error {
	return nil
}

func authedRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	ctx = middleware.WithOrganizationID(ctx, uuid.NewString())
	ctx = middleware.WithRole(ctx, string(enums.ActorRoleStaff))
	return req.WithContext(ctx)
}

func withOrderParam(req *http.Request, orderID string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderID", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestCreateOrderParsesBody(t *testing.T) {
	svc := &stubOrderService{order: &models.Order{OrderNumber: 42}}
	handler := Create(svc, nil)

	productID := uuid.NewString()
	payload := `{
		"customer_name": "Ana Dela Cruz",
		"customer_email": "ana@example.com",
		"shipping_cents": 5000,
		"items": [{"product_id": "` + productID + `", "quantity": 2}]
	}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders", payload))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.createInput == nil {
		t.Fatal("expected create to reach the service")
	}
	if svc.createInput.Channel != enums.OrderChannelWeb {
		t.Fatalf("expected web channel default got %s", svc.createInput.Channel)
	}
	if svc.createInput.CustomerName != "Ana Dela Cruz" {
		t.Fatalf("unexpected customer name %q", svc.createInput.CustomerName)
	}
	if len(svc.createInput.Items) != 1 || svc.createInput.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", svc.createInput.Items)
	}
	if svc.createInput.Items[0].UnitPriceCents != nil {
		t.Fatal("dashboard create must never carry a pre-resolved price")
	}
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	svc := &stubOrderService{order: &models.Order{}}
	handler := Create(svc, nil)

	payload := `{"customer_name": "Ana", "items": []}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders", payload))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.createInput != nil {
		t.Fatal("service should not be called for invalid body")
	}
}

func TestCreateOrderRequiresAuthContext(t *testing.T) {
	svc := &stubOrderService{order: &models.Order{}}
	handler := Create(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestChangeStatusParsesTransition(t *testing.T) {
	svc := &stubOrderService{order: &models.Order{}}
	handler := ChangeStatus(svc, nil)

	orderID := uuid.NewString()
	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID+"/status", `{"status": "PROCESSING", "reason": "accepted"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withOrderParam(req, orderID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.statusInput == nil {
		t.Fatal("expected transition to reach the service")
	}
	if svc.statusInput.Next != enums.OrderStatusProcessing {
		t.Fatalf("unexpected next status %s", svc.statusInput.Next)
	}
	if svc.statusInput.Reason != "accepted" {
		t.Fatalf("unexpected reason %q", svc.statusInput.Reason)
	}
}

func TestChangeStatusRejectsUnknownStatus(t *testing.T) {
	svc := &stubOrderService{order: &models.Order{}}
	handler := ChangeStatus(svc, nil)

	orderID := uuid.NewString()
	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID+"/status", `{"status": "SHIPPED"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withOrderParam(req, orderID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestCancelRequiresReason(t *testing.T) {
	svc := &stubOrderService{order: &models.Order{}}
	handler := Cancel(svc, nil)

	orderID := uuid.NewString()
	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", `{}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withOrderParam(req, orderID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestCancelTargetsCancelledStatus(t *testing.T) {
	svc := &stubOrderService{order: &models.Order{}}
	handler := Cancel(svc, nil)

	orderID := uuid.NewString()
	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", `{"reason": "customer asked"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withOrderParam(req, orderID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.statusInput == nil || svc.statusInput.Next != enums.OrderStatusCancelled {
		t.Fatalf("expected cancel transition got %+v", svc.statusInput)
	}
}

func TestChangePaymentStatusParsesTransition(t *testing.T) {
	svc := &stubOrderService{order: &models.Order{}}
	handler := ChangePaymentStatus(svc, nil)

	orderID := uuid.NewString()
	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID+"/payment-status", `{"payment_status": "PAID", "reason": "cash on pickup"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withOrderParam(req, orderID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.paymentStatusInput == nil || svc.paymentStatusInput.Next != enums.PaymentStatusPaid {
		t.Fatalf("expected paid transition got %+v", svc.paymentStatusInput)
	}
}

func TestListParsesFilters(t *testing.T) {
	svc := &stubOrderService{}
	handler := List(svc, nil)

	target := "/api/v1/orders?status=PENDING&payment_status=PENDING&channel=chat&q=ana&limit=10"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, target, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.listFilters == nil {
		t.Fatal("expected list to reach the service")
	}
	if svc.listFilters.Status == nil || *svc.listFilters.Status != enums.OrderStatusPending {
		t.Fatalf("unexpected status filter %+v", svc.listFilters.Status)
	}
	if svc.listFilters.Channel == nil || *svc.listFilters.Channel != enums.OrderChannelChat {
		t.Fatalf("unexpected channel filter %+v", svc.listFilters.Channel)
	}
	if svc.listFilters.Query != "ana" {
		t.Fatalf("unexpected query filter %q", svc.listFilters.Query)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(envelope.Data) == 0 {
		t.Fatal("expected data envelope")
	}
}

func TestListRejectsBadDateFilter(t *testing.T) {
	svc := &stubOrderService{}
	handler := List(svc, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/orders?from=yesterday", ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
