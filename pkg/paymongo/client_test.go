package paymongo

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/migueldlcruz/tindago-backend/pkg/config"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logg := logger.New(logger.Options{Level: zerolog.ErrorLevel})
	c, err := NewClient(context.Background(), config.PayMongoConfig{
		SecretKey:     "sk_test_key",
		WebhookSecret: "whsk_secret",
		BaseURL:       baseURL,
	}, logg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestCreateLinkSendsReferenceNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		attrs := body["data"].(map[string]any)["attributes"].(map[string]any)
		if attrs["reference_number"] != "checkout-abc" {
			t.Errorf("unexpected reference number %v", attrs["reference_number"])
		}
		_, _ = w.Write([]byte(`{"data":{"id":"link_1","attributes":{"amount":150000,"checkout_url":"https://pm.link/abc","reference_number":"checkout-abc","status":"unpaid"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	link, err := c.CreateLink(context.Background(), CreateLinkParams{
		ReferenceNumber: "checkout-abc",
		AmountCents:     150000,
		Description:     "Order #42",
	})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	if link.ID != "link_1" || link.CheckoutURL == "" {
		t.Fatalf("unexpected link %+v", link)
	}
}

func TestCreateLinkMapsValidationErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"code":"parameter_below_minimum","detail":"amount is below minimum"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.CreateLink(context.Background(), CreateLinkParams{
		ReferenceNumber: "checkout-abc",
		AmountCents:     1,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func signBody(secret string, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	c := &Client{webhookSecret: "whsk_secret"}
	body := []byte(`{"data":{"id":"evt_1"}}`)
	now := time.Now()
	ts := fmt.Sprintf("%d", now.Unix())
	header := fmt.Sprintf("t=%s,te=%s,li=", ts, signBody("whsk_secret", ts, body))

	if err := c.VerifySignature(header, body, now); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	if err := c.VerifySignature(header, []byte(`tampered`), now); err == nil {
		t.Fatalf("expected tampered body to fail")
	}

	stale := now.Add(SignatureTolerance + time.Minute)
	if err := c.VerifySignature(header, body, stale); err == nil {
		t.Fatalf("expected stale timestamp to fail")
	}

	if err := c.VerifySignature("garbage", body, now); err == nil {
		t.Fatalf("expected malformed header to fail")
	}
}

func TestVerifySignatureLiveModeUsesLiComponent(t *testing.T) {
	c := &Client{webhookSecret: "whsk_secret", liveMode: true}
	body := []byte(`{"data":{"id":"evt_1"}}`)
	now := time.Now()
	ts := fmt.Sprintf("%d", now.Unix())
	sig := signBody("whsk_secret", ts, body)

	liHeader := fmt.Sprintf("t=%s,te=,li=%s", ts, sig)
	if err := c.VerifySignature(liHeader, body, now); err != nil {
		t.Fatalf("expected li signature to verify in live mode, got %v", err)
	}

	teHeader := fmt.Sprintf("t=%s,te=%s,li=", ts, sig)
	if err := c.VerifySignature(teHeader, body, now); err == nil {
		t.Fatalf("expected te-only header to fail in live mode")
	}
}

func TestParseEvent(t *testing.T) {
	body := []byte(`{"data":{"id":"evt_1","attributes":{"type":"link.payment.paid","data":{"id":"pay_1","attributes":{"amount":150000,"fee":4500,"description":"Order #42","reference_number":"checkout-abc","status":"paid","paid_at":1735689600}}}}}`)
	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if ev.Type != EventLinkPaymentPaid || ev.ResourceID != "pay_1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !ev.Known() {
		t.Fatalf("expected known event type")
	}
	if ev.PaidAt == nil {
		t.Fatalf("expected paid_at to be set")
	}

	// Checkout-session deliveries carry the same payment payload under a
	// distinct event type.
	sessionBody := []byte(`{"data":{"id":"evt_3","attributes":{"type":"checkout_session.payment.paid","data":{"id":"pay_2","attributes":{"amount":150000,"fee":4500,"reference_number":"checkout-abc","status":"paid","paid_at":1735689600}}}}}`)
	ev3, err := ParseEvent(sessionBody)
	if err != nil {
		t.Fatalf("parse checkout session event: %v", err)
	}
	if ev3.Type != EventCheckoutSessionPaid || !ev3.Known() {
		t.Fatalf("expected checkout session payment to be known, got %+v", ev3)
	}

	unknown := []byte(`{"data":{"id":"evt_2","attributes":{"type":"source.chargeable","data":{"id":"src_1","attributes":{}}}}}`)
	ev2, err := ParseEvent(unknown)
	if err != nil {
		t.Fatalf("parse unknown event: %v", err)
	}
	if ev2.Known() {
		t.Fatalf("expected unknown event type")
	}

	if _, err := ParseEvent([]byte(`{}`)); err == nil {
		t.Fatalf("expected error for missing fields")
	}
}
