package xendit

import (
	"crypto/subtle"
	"encoding/json"
	"strings"
	"time"

	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
)

// CallbackTokenHeader is the header Xendit stamps on every callback.
const CallbackTokenHeader = "X-Callback-Token"

// Invoice callback statuses.
const (
	InvoiceStatusPaid    = "PAID"
	InvoiceStatusExpired = "EXPIRED"
)

// InvoiceCallback is the payload posted when a hosted invoice settles or
// expires.
type InvoiceCallback struct {
	ID             string     `json:"id"`
	ExternalID     string     `json:"external_id"`
	Status         string     `json:"status"`
	Amount         int64      `json:"amount"`
	PaidAmount     int64      `json:"paid_amount"`
	FeesPaidAmount int64      `json:"fees_paid_amount"`
	PaymentMethod  string     `json:"payment_method"`
	Description    string     `json:"description"`
	Currency       string     `json:"currency"`
	PaidAt         *time.Time `json:"paid_at"`
}

// VerifyCallbackToken checks the shared callback token in constant time.
func (c *Client) VerifyCallbackToken(header string) bool {
	if c == nil || c.callbackToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(header)), []byte(c.callbackToken)) == 1
}

// ParseInvoiceCallback decodes and minimally validates a callback body.
func ParseInvoiceCallback(body []byte) (*InvoiceCallback, error) {
	var cb InvoiceCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding xendit callback")
	}
	if cb.ID == "" || cb.ExternalID == "" || cb.Status == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "xendit callback missing required fields")
	}
	return &cb, nil
}
