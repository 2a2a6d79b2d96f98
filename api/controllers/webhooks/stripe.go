package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/echo-commerce-backend/api/responses"
	webhooksvc "github.com/angelmondragon/echo-commerce-backend/internal/webhooks"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
)

const maxPayloadBytes = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (string, error)
}

type DeliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

type OutcomeRecorder interface {
	Record(provider, outcome string)
}

type StripeSigner interface {
	SigningSecret() string
}

type ack struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

// StripeWebhook reconciles hosted checkout session events. Once the
// signature checks out the delivery is always acknowledged; processing
// failures are logged and released for a manual redelivery.
func StripeWebhook(svc StripeWebhookService, client StripeSigner, guard DeliveryGuard, recorder OutcomeRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil || client.SigningSecret() == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			record(recorder, "stripe", webhooksvc.OutcomeRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, client.SigningSecret(), webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			record(recorder, "stripe", webhooksvc.OutcomeRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify signature"))
			return
		}

		duplicate, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if duplicate {
			record(recorder, "stripe", webhooksvc.OutcomeDuplicate)
			responses.WriteSuccess(w, ack{Received: true, Outcome: webhooksvc.OutcomeDuplicate})
			return
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			_ = guard.Delete(ctx, event.ID)
			if logg != nil {
				logg.Error(ctx, fmt.Sprintf("stripe event %s (%s) failed", event.ID, event.Type), err)
			}
			responses.WriteSuccess(w, ack{Received: true, Outcome: webhooksvc.OutcomeFailed})
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("stripe event %s processed: %s", event.ID, outcome))
		}
		responses.WriteSuccess(w, ack{Received: true, Outcome: outcome})
	}
}

func record(recorder OutcomeRecorder, provider, outcome string) {
	if recorder != nil {
		recorder.Record(provider, outcome)
	}
}
