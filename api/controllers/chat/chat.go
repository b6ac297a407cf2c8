package chat

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/migueldlcruz/tindago-backend/api/responses"
	"github.com/migueldlcruz/tindago-backend/api/validators"
	"github.com/migueldlcruz/tindago-backend/internal/chatflow"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
)

type inboundMessageRequest struct {
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
	ChannelUserID  string    `json:"channel_user_id" validate:"required,max=160"`
	Text           string    `json:"text" validate:"required,max=1000"`
}

type replyResponse struct {
	Text       string `json:"text"`
	Step       string `json:"step"`
	PaymentURL string `json:"payment_url,omitempty"`
}

// InboundMessage receives one customer message from the chat relay and
// returns the reply the relay should send back. The relay authenticates
// with a shared key.
func InboundMessage(svc chatflow.Service, relayKey string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "chat service unavailable"))
			return
		}
		if relayKey == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "chat relay key not configured"))
			return
		}

		provided := strings.TrimSpace(r.Header.Get("X-Relay-Key"))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(relayKey)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.NewSecurity(pkgerrors.CodeUnauthorized, "relay key mismatch"))
			return
		}

		var body inboundMessageRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		reply, err := svc.HandleMessage(ctx, chatflow.Message{
			OrganizationID: body.OrganizationID,
			ChannelUserID:  body.ChannelUserID,
			Text:           body.Text,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, replyResponse{
			Text:       reply.Text,
			Step:       string(reply.Step),
			PaymentURL: reply.PaymentURL,
		})
	}
}
