package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const orderIDPlaceholder = "{ORDER_ID}"

// Metadata keys stamped on every checkout session so webhooks can find the order.
const (
	MetadataOrderID     = "order_id"
	MetadataOrderNumber = "order_number"
	MetadataBusinessID  = "business_id"
)

var errNoLineItems = errors.New("checkout session requires at least one line item")

// CheckoutLine is one priced row on the hosted checkout page.
type CheckoutLine struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

type CheckoutSessionInput struct {
	OrderID     uuid.UUID
	BusinessID  uuid.UUID
	OrderNumber string
	Currency    string
	Lines       []CheckoutLine
	ExpiresAt   time.Time
}

// CheckoutSession is the subset of the Stripe session the order keeps.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// CreateCheckoutSession opens a hosted payment-mode session for the order.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	if c == nil || c.api == nil {
		return nil, errAPIKeyRequired
	}
	params, err := c.sessionParams(in)
	if err != nil {
		return nil, err
	}
	session, err := c.api.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	out := &CheckoutSession{ID: session.ID, URL: session.URL}
	if session.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	} else {
		out.ExpiresAt = in.ExpiresAt.UTC()
	}
	return out, nil
}

// ExpireCheckoutSession closes an open session so its URL can no longer be paid.
func (c *Client) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	if c == nil || c.api == nil {
		return errAPIKeyRequired
	}
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("checkout session id is required")
	}
	if _, err := c.api.V1CheckoutSessions.Expire(ctx, sessionID, &stripe.CheckoutSessionExpireParams{}); err != nil {
		return fmt.Errorf("expire checkout session %s: %w", sessionID, err)
	}
	return nil
}

// ConstructEvent verifies the Stripe-Signature header against the raw body.
func (c *Client) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, errSecretRequired
	}
	return webhook.ConstructEvent(payload, signature, c.signingSecret)
}

func (c *Client) sessionParams(in CheckoutSessionInput) (*stripe.CheckoutSessionCreateParams, error) {
	if len(in.Lines) == 0 {
		return nil, errNoLineItems
	}
	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		return nil, errors.New("checkout currency is required")
	}

	lines := make([]*stripe.CheckoutSessionCreateLineItemParams, 0, len(in.Lines))
	for _, line := range in.Lines {
		lines = append(lines, &stripe.CheckoutSessionCreateLineItemParams{
			Quantity: stripe.Int64(line.Quantity),
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(line.UnitAmount),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
		})
	}

	orderID := in.OrderID.String()
	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         lines,
		ClientReferenceID: stripe.String(orderID),
		SuccessURL:        stripe.String(expandOrderURL(c.successURL, orderID)),
		CancelURL:         stripe.String(expandOrderURL(c.cancelURL, orderID)),
		Metadata: map[string]string{
			MetadataOrderID:     orderID,
			MetadataOrderNumber: in.OrderNumber,
			MetadataBusinessID:  in.BusinessID.String(),
		},
	}
	if !in.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(in.ExpiresAt.Unix())
	}
	return params, nil
}

func expandOrderURL(template, orderID string) string {
	return strings.ReplaceAll(template, orderIDPlaceholder, orderID)
}
