package webhooks

import (
	"io"
	"net/http"

	"github.com/migueldlcruz/tindago-backend/api/responses"
	"github.com/migueldlcruz/tindago-backend/internal/payments"
	pkgerrors "github.com/migueldlcruz/tindago-backend/pkg/errors"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
)

// PayMongoEvent handles signed webhook events. The signature header covers
// the raw body, so the body must reach the service untouched.
func PayMongoEvent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		result, err := svc.HandlePayMongoEvent(ctx, r.Header.Get("Paymongo-Signature"), payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"provider": "paymongo",
				"outcome":  string(result.Outcome),
				"orders":   result.Orders,
			})
			logg.Info(logCtx, "webhook processed")
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(result.Outcome)})
	}
}
