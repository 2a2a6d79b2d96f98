package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/echo-commerce-backend/api/responses"
	webhooksvc "github.com/angelmondragon/echo-commerce-backend/internal/webhooks"
	shopifywebhook "github.com/angelmondragon/echo-commerce-backend/internal/webhooks/shopify"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/shopify"
)

type ShopifyWebhookService interface {
	HandleDelivery(ctx context.Context, d shopifywebhook.Delivery) (string, error)
}

// ShopifyWebhook reconciles marketplace order webhooks. The HMAC over the
// raw body is checked before anything is parsed.
func ShopifyWebhook(svc ShopifyWebhookService, secret string, guard DeliveryGuard, recorder OutcomeRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if secret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shopify webhook secret unavailable"))
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

		if !shopify.VerifyWebhook(payload, r.Header.Get(shopify.HeaderHmac), secret) {
			record(recorder, "shopify", webhooksvc.OutcomeRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid shopify signature"))
			return
		}

		delivery := shopifywebhook.Delivery{
			Topic:      strings.TrimSpace(r.Header.Get(shopify.HeaderTopic)),
			ShopDomain: strings.TrimSpace(r.Header.Get(shopify.HeaderShopDomain)),
			WebhookID:  strings.TrimSpace(r.Header.Get(shopify.HeaderWebhookID)),
			Body:       payload,
		}
		if delivery.ShopDomain == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "shop domain header missing"))
			return
		}

		if delivery.WebhookID != "" {
			duplicate, err := guard.CheckAndMark(ctx, delivery.WebhookID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if duplicate {
				record(recorder, "shopify", webhooksvc.OutcomeDuplicate)
				responses.WriteSuccess(w, ack{Received: true, Outcome: webhooksvc.OutcomeDuplicate})
				return
			}
		}

		outcome, err := svc.HandleDelivery(ctx, delivery)
		if err != nil {
			if delivery.WebhookID != "" {
				_ = guard.Delete(ctx, delivery.WebhookID)
			}
			if logg != nil {
				logg.Error(ctx, fmt.Sprintf("shopify %s webhook from %s failed", delivery.Topic, delivery.ShopDomain), err)
			}
			responses.WriteSuccess(w, ack{Received: true, Outcome: webhooksvc.OutcomeFailed})
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("shopify %s webhook from %s processed: %s", delivery.Topic, delivery.ShopDomain, outcome))
		}
		responses.WriteSuccess(w, ack{Received: true, Outcome: outcome})
	}
}
