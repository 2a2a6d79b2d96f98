package payments

import (
	"context"
	"fmt"

	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
)

const paymentNotStartedMessage = "payment could not be started"

// Orchestrator picks the payment variant for a card order: the business's
// marketplace first, hosted checkout as the fallback.
type Orchestrator struct {
	marketplace *Marketplace
	hosted      Variant
	logg        *logger.Logger
}

// NewOrchestrator accepts nil for either variant when it is not configured.
func NewOrchestrator(marketplace *Marketplace, hosted Variant, logg *logger.Logger) *Orchestrator {
	return &Orchestrator{marketplace: marketplace, hosted: hosted, logg: logg}
}

// Outcome is the artifact plus why the marketplace was bypassed, if it was.
type Outcome struct {
	Artifact       *Artifact
	FallbackReason string
}

// CreatePaymentArtifact runs the selection. Provider failures come back as
// PAYMENT_NOT_STARTED with the raw cause attached for logging.
func (o *Orchestrator) CreatePaymentArtifact(ctx context.Context, order *models.Order) (*Outcome, error) {
	connected := false
	if o.marketplace != nil {
		ok, err := o.marketplace.Connected(ctx, order.BusinessID)
		if err != nil {
			o.warn(ctx, order, "marketplace connection lookup failed: "+err.Error())
		}
		connected = ok
	}
	if !connected && o.hosted == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNoPaymentProvider, "no payment provider configured")
	}

	outcome := &Outcome{}
	if connected {
		artifact, err := o.marketplace.CreatePaymentArtifact(ctx, order)
		if err == nil {
			outcome.Artifact = artifact
			return outcome, nil
		}
		outcome.FallbackReason = err.Error()
		if o.hosted == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePaymentNotStarted, err, paymentNotStartedMessage)
		}
		o.warn(ctx, order, fmt.Sprintf("marketplace payment failed, falling back to hosted checkout: %v", err))
	}

	artifact, err := o.hosted.CreatePaymentArtifact(ctx, order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentNotStarted, err, paymentNotStartedMessage)
	}
	outcome.Artifact = artifact
	return outcome, nil
}

func (o *Orchestrator) warn(ctx context.Context, order *models.Order, msg string) {
	if o.logg == nil {
		return
	}
	o.logg.Warn(o.logg.WithOrderID(ctx, order.ID.String()), msg)
}
