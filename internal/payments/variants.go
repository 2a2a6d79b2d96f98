package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/shopify"
	"github.com/angelmondragon/echo-commerce-backend/pkg/stripe"
)

var (
	errNoConnection    = errors.New("business has no active marketplace connection")
	errNothingMappable = errors.New("no order items map to marketplace variants")
	errEmptyOrder      = errors.New("order has no items")
)

// SkippedItem is an order line the marketplace could not price.
type SkippedItem struct {
	ItemID uuid.UUID `json:"item_id"`
	Name   string    `json:"name"`
}

// Artifact is what the customer acts on to pay. Cash artifacts carry no URL.
type Artifact struct {
	Provider     enums.PaymentProvider
	URL          string
	ExpiresAt    *time.Time
	ExternalID   string
	ExternalName string
	SkippedItems []SkippedItem
}

// Variant is one way of collecting payment for an order.
type Variant interface {
	Provider() enums.PaymentProvider
	CreatePaymentArtifact(ctx context.Context, order *models.Order) (*Artifact, error)
}

// Cash collects payment on delivery; nothing external is created.
type Cash struct{}

func (Cash) Provider() enums.PaymentProvider { return enums.PaymentProviderCash }

func (Cash) CreatePaymentArtifact(_ context.Context, order *models.Order) (*Artifact, error) {
	if len(order.Items) == 0 {
		return nil, errEmptyOrder
	}
	return &Artifact{Provider: enums.PaymentProviderCash}, nil
}

type checkoutCreator interface {
	CreateCheckoutSession(ctx context.Context, in stripe.CheckoutSessionInput) (*stripe.CheckoutSession, error)
}

// HostedCheckout opens a Stripe checkout session with one line per order item.
type HostedCheckout struct {
	client checkoutCreator
	ttl    time.Duration
	now    func() time.Time
}

func NewHostedCheckout(client checkoutCreator, ttl time.Duration) *HostedCheckout {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &HostedCheckout{client: client, ttl: ttl, now: time.Now}
}

func (h *HostedCheckout) Provider() enums.PaymentProvider { return enums.PaymentProviderStripe }

func (h *HostedCheckout) CreatePaymentArtifact(ctx context.Context, order *models.Order) (*Artifact, error) {
	if len(order.Items) == 0 {
		return nil, errEmptyOrder
	}
	lines := make([]stripe.CheckoutLine, 0, len(order.Items)+1)
	for _, item := range order.Items {
		name := item.Name
		if item.VariantName != nil && *item.VariantName != "" {
			name = fmt.Sprintf("%s (%s)", item.Name, *item.VariantName)
		}
		lines = append(lines, stripe.CheckoutLine{Name: name, UnitAmount: item.UnitPriceCents, Quantity: int64(item.Quantity)})
	}
	if order.DeliveryFeeCents > 0 {
		lines = append(lines, stripe.CheckoutLine{Name: "Delivery", UnitAmount: order.DeliveryFeeCents, Quantity: 1})
	}

	session, err := h.client.CreateCheckoutSession(ctx, stripe.CheckoutSessionInput{
		OrderID:     order.ID,
		BusinessID:  order.BusinessID,
		OrderNumber: order.OrderNumber,
		Currency:    order.Currency.String(),
		Lines:       lines,
		ExpiresAt:   h.now().Add(h.ttl),
	})
	if err != nil {
		return nil, err
	}
	expires := session.ExpiresAt
	return &Artifact{
		Provider:   enums.PaymentProviderStripe,
		URL:        session.URL,
		ExpiresAt:  &expires,
		ExternalID: session.ID,
	}, nil
}

type connectionLookup interface {
	ActiveConnection(ctx context.Context, businessID uuid.UUID) (*models.MarketplaceConnection, error)
}

// DraftOrderCreator is the marketplace call the Marketplace variant needs.
type DraftOrderCreator interface {
	CreateDraftOrder(ctx context.Context, in shopify.DraftOrderInput) (*shopify.DraftOrder, error)
}

// ShopClients builds a marketplace client for a stored connection.
type ShopClients func(shopDomain, accessToken string) (DraftOrderCreator, error)

// Marketplace creates a Shopify draft order whose invoice URL is the payment link.
type Marketplace struct {
	connections connectionLookup
	clients     ShopClients
	ttl         time.Duration
	now         func() time.Time
}

func NewMarketplace(connections connectionLookup, clients ShopClients, ttl time.Duration) *Marketplace {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Marketplace{connections: connections, clients: clients, ttl: ttl, now: time.Now}
}

func (m *Marketplace) Provider() enums.PaymentProvider { return enums.PaymentProviderShopify }

// Connected reports whether the business has an active marketplace connection.
func (m *Marketplace) Connected(ctx context.Context, businessID uuid.UUID) (bool, error) {
	conn, err := m.connections.ActiveConnection(ctx, businessID)
	return conn != nil, err
}

func (m *Marketplace) CreatePaymentArtifact(ctx context.Context, order *models.Order) (*Artifact, error) {
	conn, err := m.connections.ActiveConnection(ctx, order.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("load marketplace connection: %w", err)
	}
	if conn == nil {
		return nil, errNoConnection
	}

	lines, skipped := MarketplaceLines(order.Items)
	if len(lines) == 0 {
		return nil, errNothingMappable
	}
	client, err := m.clients(conn.ShopDomain, conn.AccessToken)
	if err != nil {
		return nil, err
	}
	draft, err := client.CreateDraftOrder(ctx, shopify.DraftOrderInput{
		OrderNumber: order.OrderNumber,
		Currency:    order.Currency.String(),
		Note:        "Echo order " + order.OrderNumber,
		Lines:       lines,
	})
	if err != nil {
		return nil, err
	}
	expires := m.now().Add(m.ttl).UTC()
	return &Artifact{
		Provider:     enums.PaymentProviderShopify,
		URL:          draft.InvoiceURL,
		ExpiresAt:    &expires,
		ExternalID:   draft.ID,
		ExternalName: draft.Name,
		SkippedItems: skipped,
	}, nil
}

// MarketplaceLines maps order items to marketplace variant lines. Items
// without a usable external variant id are returned as skipped.
func MarketplaceLines(items []models.OrderLineItem) ([]shopify.DraftLine, []SkippedItem) {
	var (
		lines   []shopify.DraftLine
		skipped []SkippedItem
	)
	for _, item := range items {
		var variantID uint64
		ok := false
		if item.ExternalVariantID != nil {
			variantID, ok = shopify.ParseVariantID(*item.ExternalVariantID)
		}
		if !ok {
			skipped = append(skipped, SkippedItem{ItemID: item.ID, Name: item.Name})
			continue
		}
		lines = append(lines, shopify.DraftLine{
			VariantID:  variantID,
			Quantity:   item.Quantity,
			Title:      item.Name,
			PriceCents: item.UnitPriceCents,
		})
	}
	return lines, skipped
}
