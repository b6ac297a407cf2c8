package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/migueldlcruz/tindago-backend/pkg/db/models"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
)

const senderTimeout = 10 * time.Second

// HTTPSender posts notifications to the configured relay endpoint. The relay
// owns templating and the actual email/SMS delivery.
type HTTPSender struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewHTTPSender builds a relay-backed sender.
func NewHTTPSender(endpoint, apiKey string, logg *logger.Logger) (*HTTPSender, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("notification relay endpoint required")
	}
	if logg == nil {
		return nil, fmt.Errorf("notification sender logger required")
	}
	return &HTTPSender{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: senderTimeout},
		logger:     logg,
	}, nil
}

type relayMessage struct {
	Kind      string         `json:"kind"`
	Recipient string         `json:"recipient"`
	OrderID   string         `json:"order_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, notification models.Notification) error {
	message := relayMessage{
		Kind:      notification.Kind.String(),
		Recipient: notification.Recipient,
		Payload:   notification.Payload,
	}
	if notification.OrderID != nil {
		message.OrderID = notification.OrderID.String()
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode relay message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("relay responded %d", resp.StatusCode)
	}
	return nil
}
