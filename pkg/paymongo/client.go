package paymongo

import (
	"bytes"
	"context"
	"encoding/base64"
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
	defaultBaseURL = "https://api.paymongo.com"
	linksPath      = "/v1/links"

	maxRetries     = 2
	initialBackoff = 300 * time.Millisecond
	requestTimeout = 15 * time.Second
)

var (
	errSecretKeyRequired     = errors.New("paymongo secret key is required")
	errWebhookSecretRequired = errors.New("paymongo webhook secret is required")
	errLoggerRequired        = errors.New("paymongo logger is required")
)

// Client exposes PayMongo payment-link primitives with centralized auth,
// logging, retries, and error mapping.
type Client struct {
	httpClient    *http.Client
	secretKey     string
	webhookSecret string
	baseURL       string
	liveMode      bool
	logger        *logger.Logger
}

// CreateLinkParams describes one payment link. The reference number carries
// the checkout session handle so webhook events can be routed back.
type CreateLinkParams struct {
	ReferenceNumber string
	AmountCents     int64
	Description     string
}

// Link is the subset of the PayMongo link resource the engine uses.
type Link struct {
	ID              string
	CheckoutURL     string
	ReferenceNumber string
	Status          string
	AmountCents     int64
}

// NewClient initializes the PayMongo wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.PayMongoConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, errSecretKeyRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: requestTimeout},
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		liveMode:      cfg.LiveMode,
		logger:        logg,
	}

	logg.Info(ctx, "paymongo client initialized")
	return c, nil
}

// CreateLink mints a hosted payment link. Transient failures are retried;
// the session intent claim upstream keeps this at-most-once per session.
func (c *Client) CreateLink(ctx context.Context, params CreateLinkParams) (*Link, error) {
	if strings.TrimSpace(params.ReferenceNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "link reference number is required")
	}
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "link amount must be positive")
	}

	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"amount":           params.AmountCents,
				"description":      params.Description,
				"reference_number": params.ReferenceNumber,
			},
		},
	}

	c.log(ctx, "request", "create_link", map[string]any{
		"reference_number": params.ReferenceNumber,
		"amount":           params.AmountCents,
	})

	var resp linkResponse
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(initialBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, linksPath, body, &resp)
	})
	if err != nil {
		c.log(ctx, "error", "create_link", map[string]any{"error": err.Error()})
		return nil, err
	}

	link := resp.toLink()
	c.log(ctx, "response", "create_link", map[string]any{
		"link_id": link.ID,
		"status":  link.Status,
	})
	return link, nil
}

type linkResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Amount          int64  `json:"amount"`
			CheckoutURL     string `json:"checkout_url"`
			ReferenceNumber string `json:"reference_number"`
			Status          string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

func (r linkResponse) toLink() *Link {
	return &Link{
		ID:              r.Data.ID,
		CheckoutURL:     r.Data.Attributes.CheckoutURL,
		ReferenceNumber: r.Data.Attributes.ReferenceNumber,
		Status:          r.Data.Attributes.Status,
		AmountCents:     r.Data.Attributes.Amount,
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding paymongo request")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building paymongo request")
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.secretKey+":")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeProvider, err, "paymongo request failed"))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeProvider, err, "reading paymongo response"))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return retry.RetryableError(pkgerrors.New(pkgerrors.CodeProvider,
			fmt.Sprintf("paymongo returned %d", resp.StatusCode)))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return mapAPIError(resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decoding paymongo response")
		}
	}
	return nil
}

func mapAPIError(status int, raw []byte) error {
	var payload struct {
		Errors []struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	_ = json.Unmarshal(raw, &payload)

	message := fmt.Sprintf("paymongo returned %d", status)
	details := map[string]any{}
	if len(payload.Errors) > 0 {
		message = payload.Errors[0].Detail
		details["code"] = payload.Errors[0].Code
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
	return pkgerrors.New(code, message).WithDetails(details)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
		"provider":  "paymongo",
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("paymongo %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("paymongo %s", phase))
	}
}
