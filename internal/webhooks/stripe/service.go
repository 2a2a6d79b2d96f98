package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/internal/webhooks"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
)

var provider = string(enums.PaymentProviderStripe)

type sessionLocker interface {
	LockByCheckoutSessionTx(tx *gorm.DB, sessionID string) (*models.Order, error)
}

type reconciler interface {
	Apply(ctx context.Context, provider string, locate webhooks.Locator, signal orders.PaymentSignal, patch webhooks.Patch) (string, error)
	Skip(ctx context.Context, provider, detail string) string
}

// Service reconciles hosted checkout session events with orders.
type Service struct {
	orders     sessionLocker
	reconciler reconciler
}

func NewService(store sessionLocker, rec reconciler) (*Service, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repository required")
	}
	if rec == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	return &Service{orders: store, reconciler: rec}, nil
}

// HandleEvent applies one verified Stripe event and returns its outcome.
// Sessions that match no order are not an error.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (string, error) {
	if event == nil || event.Data == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var signal orders.PaymentSignal
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		signal = orders.SignalPaid
	case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		signal = orders.SignalFailed
	default:
		return s.reconciler.Skip(ctx, provider, "unhandled event type "+string(event.Type)), nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	sessionID := strings.TrimSpace(session.ID)
	if sessionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	// Delayed payment methods complete the session before funds arrive; the
	// async_payment_succeeded event carries the real payment.
	if event.Type == stripe.EventTypeCheckoutSessionCompleted &&
		session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		return s.reconciler.Skip(ctx, provider, "session "+sessionID+" completed unpaid"), nil
	}

	locate := func(tx *gorm.DB) (*models.Order, error) {
		return s.orders.LockByCheckoutSessionTx(tx, sessionID)
	}
	return s.reconciler.Apply(ctx, provider, locate, signal, nil)
}
