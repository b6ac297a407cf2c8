package paymongo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
)

// SignatureHeader is the header PayMongo stamps on every webhook delivery.
const SignatureHeader = "Paymongo-Signature"

// Event types the engine understands. Anything else is ignored upstream.
const (
	EventLinkPaymentPaid     = "link.payment.paid"
	EventCheckoutSessionPaid = "checkout_session.payment.paid"
	EventPaymentPaid         = "payment.paid"
	EventPaymentFailed       = "payment.failed"
)

// SignatureTolerance bounds how stale a signed timestamp may be.
const SignatureTolerance = 5 * time.Minute

// Event is the normalized webhook payload.
type Event struct {
	ID              string
	Type            string
	ResourceID      string
	AmountCents     int64
	FeeCents        int64
	Description     string
	ReferenceNumber string
	Status          string
	PaidAt          *time.Time
}

// VerifySignature checks the t=<ts>,te=<sig>,li=<sig> header against the
// webhook secret. The te component covers test mode, li covers live mode.
func (c *Client) VerifySignature(header string, body []byte, now time.Time) error {
	if c == nil || c.webhookSecret == "" {
		return pkgerrors.NewSecurity(pkgerrors.CodeUnauthorized, "paymongo webhook secret not configured")
	}

	parts := map[string]string{}
	for _, piece := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(piece), "=", 2)
		if len(kv) == 2 {
			parts[kv[0]] = kv[1]
		}
	}

	ts := parts["t"]
	if ts == "" {
		return pkgerrors.NewSecurity(pkgerrors.CodeUnauthorized, "paymongo signature missing timestamp")
	}

	want := parts["te"]
	if c.liveMode {
		want = parts["li"]
	}
	if want == "" {
		return pkgerrors.NewSecurity(pkgerrors.CodeUnauthorized, "paymongo signature missing digest")
	}

	unix, err := parseUnix(ts)
	if err != nil {
		return pkgerrors.NewSecurity(pkgerrors.CodeUnauthorized, "paymongo signature timestamp malformed")
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return pkgerrors.NewSecurity(pkgerrors.CodeUnauthorized, "paymongo signature timestamp out of tolerance")
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(want)) {
		return pkgerrors.NewSecurity(pkgerrors.CodeUnauthorized, "paymongo signature mismatch")
	}
	return nil
}

func parseUnix(raw string) (int64, error) {
	var unix int64
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "non-numeric timestamp")
		}
		unix = unix*10 + int64(r-'0')
	}
	return unix, nil
}

type eventEnvelope struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Type string `json:"type"`
			Data struct {
				ID         string `json:"id"`
				Attributes struct {
					Amount          int64  `json:"amount"`
					Fee             int64  `json:"fee"`
					Description     string `json:"description"`
					ReferenceNumber string `json:"reference_number"`
					Status          string `json:"status"`
					PaidAt          int64  `json:"paid_at"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseEvent decodes a webhook body into the normalized event shape.
func ParseEvent(body []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding paymongo event")
	}
	if env.Data.ID == "" || env.Data.Attributes.Type == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paymongo event missing required fields")
	}

	attrs := env.Data.Attributes.Data.Attributes
	ev := &Event{
		ID:              env.Data.ID,
		Type:            env.Data.Attributes.Type,
		ResourceID:      env.Data.Attributes.Data.ID,
		AmountCents:     attrs.Amount,
		FeeCents:        attrs.Fee,
		Description:     attrs.Description,
		ReferenceNumber: attrs.ReferenceNumber,
		Status:          attrs.Status,
	}
	if attrs.PaidAt > 0 {
		t := time.Unix(attrs.PaidAt, 0).UTC()
		ev.PaidAt = &t
	}
	return ev, nil
}

// Known reports whether the engine has handling for the event type.
func (e *Event) Known() bool {
	switch e.Type {
	case EventLinkPaymentPaid, EventCheckoutSessionPaid, EventPaymentPaid, EventPaymentFailed:
		return true
	default:
		return false
	}
}
