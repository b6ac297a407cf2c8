package xendit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/migueldlcruz/tindago-backend/pkg/config"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
)

const (
	defaultBaseURL = "https://api.xendit.co"
	invoicePath    = "/v2/invoices"

	maxRetries     = 2
	initialBackoff = 300 * time.Millisecond
	requestTimeout = 15 * time.Second
)

var (
	errAPIKeyRequired        = errors.New("xendit api key is required")
	errCallbackTokenRequired = errors.New("xendit callback token is required")
	errLoggerRequired        = errors.New("xendit logger is required")
)

// Client exposes Xendit invoice primitives with centralized auth, logging,
// retries, and error mapping.
type Client struct {
	httpClient      *http.Client
	apiKey          string
	callbackToken   string
	baseURL         string
	invoiceDuration time.Duration
	logger          *logger.Logger
}

// CreateInvoiceParams describes one invoice to mint. ExternalID carries the
// checkout session reference so callbacks can be routed back to it.
type CreateInvoiceParams struct {
	ExternalID  string
	AmountCents int64
	Description string
	PayerEmail  string
	SuccessURL  string
}

// Invoice is the subset of the Xendit invoice resource the engine uses.
type Invoice struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	InvoiceURL string    `json:"invoice_url"`
	Status     string    `json:"status"`
	Amount     int64     `json:"amount"`
	ExpiryDate time.Time `json:"expiry_date"`
}

// NewClient initializes the Xendit wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.XenditConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	callbackToken := strings.TrimSpace(cfg.CallbackToken)
	if callbackToken == "" {
		return nil, errCallbackTokenRequired
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	c := &Client{
		httpClient:      &http.Client{Timeout: requestTimeout},
		apiKey:          apiKey,
		callbackToken:   callbackToken,
		baseURL:         baseURL,
		invoiceDuration: cfg.InvoiceDuration,
		logger:          logg,
	}

	logg.Info(ctx, "xendit client initialized")
	return c, nil
}

// CreateInvoice mints a hosted invoice. Transient failures are retried with
// exponential backoff; the caller must have claimed the session intent first
// so a duplicate call can never reach here.
func (c *Client) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*Invoice, error) {
	if strings.TrimSpace(params.ExternalID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice external id is required")
	}
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice amount must be positive")
	}

	body := map[string]any{
		"external_id": params.ExternalID,
		"amount":      params.AmountCents,
		"description": params.Description,
		"currency":    "PHP",
	}
	if c.invoiceDuration > 0 {
		body["invoice_duration"] = int(c.invoiceDuration.Seconds())
	}
	if params.PayerEmail != "" {
		body["payer_email"] = params.PayerEmail
	}
	if params.SuccessURL != "" {
		body["success_redirect_url"] = params.SuccessURL
	}

	c.log(ctx, "request", "create_invoice", map[string]any{
		"external_id": params.ExternalID,
		"amount":      params.AmountCents,
	})

	var invoice Invoice
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(initialBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, invoicePath, body, &invoice)
	})
	if err != nil {
		c.log(ctx, "error", "create_invoice", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_invoice", map[string]any{
		"invoice_id": invoice.ID,
		"status":     invoice.Status,
	})
	return &invoice, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding xendit request")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building xendit request")
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeProvider, err, "xendit request failed"))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeProvider, err, "reading xendit response"))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return retry.RetryableError(pkgerrors.New(pkgerrors.CodeProvider,
			fmt.Sprintf("xendit returned %d", resp.StatusCode)))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return mapAPIError(resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decoding xendit response")
		}
	}
	return nil
}

func mapAPIError(status int, raw []byte) error {
	var payload struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	_ = json.Unmarshal(raw, &payload)

	message := payload.Message
	if message == "" {
		message = fmt.Sprintf("xendit returned %d", status)
	}

	code := pkgerrors.CodeProvider
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = pkgerrors.CodeUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = pkgerrors.CodeValidation
	case http.StatusConflict:
		code = pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		code = pkgerrors.CodeRateLimit
	}
	return pkgerrors.New(code, message).WithDetails(map[string]any{"error_code": payload.ErrorCode})
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
		"provider":  "xendit",
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("xendit %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("xendit %s", phase))
	}
}
