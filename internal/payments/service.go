package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/metrics"
)

const (
	defaultLinkLimit  = 10
	defaultLinkWindow = time.Minute
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderStore interface {
	FindByID(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error)
	LockTx(tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	UpdateTx(tx *gorm.DB, order *models.Order, columns ...string) error
}

type orderConfirmer interface {
	ConfirmCash(ctx context.Context, businessID, orderID uuid.UUID, actor orders.Actor) (*models.Order, error)
	SelectCard(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error)
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type artifactCreator interface {
	CreatePaymentArtifact(ctx context.Context, order *models.Order) (*Outcome, error)
}

type checkoutExpirer interface {
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

type ServiceParams struct {
	Orders       orderStore
	Confirmer    orderConfirmer
	Orchestrator artifactCreator
	Tx           txRunner
	Limiter      rateLimiter
	Checkout     checkoutExpirer
	Metrics      *metrics.CommerceMetrics
	Logger       *logger.Logger
	LinkLimit    int
	LinkWindow   time.Duration
	Now          func() time.Time
}

// Service drives payment method selection and payment link generation.
type Service struct {
	orders       orderStore
	confirmer    orderConfirmer
	orchestrator artifactCreator
	cash         Cash
	tx           txRunner
	limiter      rateLimiter
	checkout     checkoutExpirer
	metrics      *metrics.CommerceMetrics
	logg         *logger.Logger
	linkLimit    int64
	linkWindow   time.Duration
	now          func() time.Time
}

// LinkResult is returned to the caller of GeneratePaymentLink.
type LinkResult struct {
	OrderID        uuid.UUID             `json:"order_id"`
	URL            string                `json:"url"`
	Provider       enums.PaymentProvider `json:"provider"`
	ExpiresAt      *time.Time            `json:"expires_at,omitempty"`
	SkippedItems   []SkippedItem         `json:"skipped_items"`
	FallbackReason string                `json:"-"`
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Orders == nil:
		return nil, fmt.Errorf("order store required")
	case params.Confirmer == nil:
		return nil, fmt.Errorf("order confirmer required")
	case params.Orchestrator == nil:
		return nil, fmt.Errorf("payment orchestrator required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	svc := &Service{
		orders:       params.Orders,
		confirmer:    params.Confirmer,
		orchestrator: params.Orchestrator,
		tx:           params.Tx,
		limiter:      params.Limiter,
		checkout:     params.Checkout,
		metrics:      params.Metrics,
		logg:         params.Logger,
		linkLimit:    int64(params.LinkLimit),
		linkWindow:   params.LinkWindow,
		now:          params.Now,
	}
	if svc.linkLimit <= 0 {
		svc.linkLimit = defaultLinkLimit
	}
	if svc.linkWindow <= 0 {
		svc.linkWindow = defaultLinkWindow
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// SetPaymentMethod records the customer's choice. Cash confirms the order
// immediately; card leaves it in draft until a link is paid.
func (s *Service) SetPaymentMethod(ctx context.Context, businessID, orderID uuid.UUID, method enums.PaymentMethod, actor orders.Actor) (*models.Order, error) {
	switch method {
	case enums.PaymentMethodCash:
		order, err := s.orders.FindByID(ctx, businessID, orderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if _, err := s.cash.CreatePaymentArtifact(ctx, order); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
		}
		confirmed, err := s.confirmer.ConfirmCash(ctx, businessID, orderID, actor)
		s.metrics.IncPaymentArtifact(enums.PaymentProviderCash.String(), outcomeLabel(err))
		return confirmed, err
	case enums.PaymentMethodCard:
		return s.confirmer.SelectCard(ctx, businessID, orderID)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment method %q", method))
	}
}

// GeneratePaymentLink creates a marketplace invoice or hosted checkout link
// for a draft order. The provider call happens outside any transaction; the
// result is persisted only if the order is still eligible afterwards.
func (s *Service) GeneratePaymentLink(ctx context.Context, businessID, orderID uuid.UUID) (*LinkResult, error) {
	if err := s.allow(ctx, orderID); err != nil {
		return nil, err
	}

	order, err := s.orders.FindByID(ctx, businessID, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err := s.linkEligible(order); err != nil {
		return nil, err
	}

	outcome, err := s.orchestrator.CreatePaymentArtifact(ctx, order)
	if err != nil {
		s.metrics.IncPaymentArtifact("none", "failed")
		s.logError(ctx, order, "payment link generation failed", err)
		return nil, err
	}
	artifact := outcome.Artifact
	if outcome.FallbackReason != "" {
		s.metrics.IncPaymentArtifact(enums.PaymentProviderShopify.String(), "fallback")
	}
	s.metrics.IncPaymentArtifact(artifact.Provider.String(), "created")

	var saved *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.orders.LockTx(tx, orderID)
		if err != nil {
			return err
		}
		if locked == nil || locked.BusinessID != businessID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err := s.linkEligible(locked); err != nil {
			return err
		}
		applyArtifact(locked, artifact)
		saved = locked
		return s.orders.UpdateTx(tx, locked,
			"payment_method", "payment_provider", "payment_status",
			"payment_link_url", "payment_link_expires_at",
			"checkout_session_id", "marketplace_draft_order_id", "marketplace_order_number")
	})
	if err != nil {
		s.discard(ctx, order, artifact)
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save payment link")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithBusinessID(ctx, businessID.String()), orderID.String())
		msg := fmt.Sprintf("payment link created via %s for %s", artifact.Provider, saved.OrderNumber)
		if outcome.FallbackReason != "" {
			msg += " (fallback: " + outcome.FallbackReason + ")"
		}
		s.logg.Info(logCtx, msg)
	}

	skipped := artifact.SkippedItems
	if skipped == nil {
		skipped = []SkippedItem{}
	}
	return &LinkResult{
		OrderID:        orderID,
		URL:            artifact.URL,
		Provider:       artifact.Provider,
		ExpiresAt:      artifact.ExpiresAt,
		SkippedItems:   skipped,
		FallbackReason: outcome.FallbackReason,
	}, nil
}

// discard closes a hosted checkout that was created but never stored, so a
// request that lost the race for the order leaves no payable session behind.
func (s *Service) discard(ctx context.Context, order *models.Order, artifact *Artifact) {
	if s.checkout == nil || artifact.Provider != enums.PaymentProviderStripe || artifact.ExternalID == "" {
		return
	}
	if err := s.checkout.ExpireCheckoutSession(context.WithoutCancel(ctx), artifact.ExternalID); err != nil {
		s.logError(ctx, order, "could not expire discarded checkout session "+artifact.ExternalID, err)
	}
}

func (s *Service) allow(ctx context.Context, orderID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	allowed, _, err := s.limiter.FixedWindowAllow(ctx, "payment-link:"+orderID.String(), s.linkLimit, s.linkWindow)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "payment link rate limiter unavailable: "+err.Error())
		}
		return nil
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many payment link requests; try again shortly")
	}
	return nil
}

func (s *Service) linkEligible(order *models.Order) error {
	if err := orders.RequireStatus(order.Status, "generate a payment link", enums.OrderStatusDraft); err != nil {
		return err
	}
	if len(order.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order has no items")
	}
	if order.DeliveryType == enums.DeliveryTypeDelivery && order.DeliveryAddress == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery address required for delivery orders")
	}
	if order.HasActivePaymentLink(s.now()) {
		return pkgerrors.New(pkgerrors.CodeConflict, "order already has an active payment link")
	}
	return nil
}

// applyArtifact stores the new link and clears the other provider's
// correlation ids so webhooks for an abandoned attempt no longer match.
func applyArtifact(order *models.Order, artifact *Artifact) {
	method := enums.PaymentMethodCard
	provider := artifact.Provider
	url := artifact.URL
	order.PaymentMethod = &method
	order.PaymentProvider = &provider
	order.PaymentStatus = enums.PaymentStatusPending
	order.PaymentLinkURL = &url
	order.PaymentLinkExpiresAt = artifact.ExpiresAt

	externalID := artifact.ExternalID
	switch artifact.Provider {
	case enums.PaymentProviderStripe:
		order.CheckoutSessionID = &externalID
		order.MarketplaceDraftID = nil
		order.MarketplaceOrderName = nil
	case enums.PaymentProviderShopify:
		name := artifact.ExternalName
		order.MarketplaceDraftID = &externalID
		order.MarketplaceOrderName = &name
		order.CheckoutSessionID = nil
	}
}

func (s *Service) logError(ctx context.Context, order *models.Order, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), msg, err)
}

func outcomeLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "created"
}
