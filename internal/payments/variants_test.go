package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/shopify"
	"github.com/angelmondragon/echo-commerce-backend/pkg/stripe"
)

type fakeCheckout struct {
	calls    int
	last     stripe.CheckoutSessionInput
	err      error
	onCreate func()
	expired  []string
}

func (f *fakeCheckout) CreateCheckoutSession(_ context.Context, in stripe.CheckoutSessionInput) (*stripe.CheckoutSession, error) {
	f.calls++
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	if f.onCreate != nil {
		f.onCreate()
	}
	return &stripe.CheckoutSession{ID: "cs_test_" + in.OrderNumber, URL: "https://checkout.stripe.test/" + in.OrderNumber, ExpiresAt: in.ExpiresAt}, nil
}

func (f *fakeCheckout) ExpireCheckoutSession(_ context.Context, sessionID string) error {
	f.expired = append(f.expired, sessionID)
	return nil
}

type fakeDrafts struct {
	calls int
	last  shopify.DraftOrderInput
	err   error
}

func (f *fakeDrafts) CreateDraftOrder(_ context.Context, in shopify.DraftOrderInput) (*shopify.DraftOrder, error) {
	f.calls++
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	return &shopify.DraftOrder{ID: "9001", Name: "#D12", InvoiceURL: "https://acme.myshopify.com/invoices/abc"}, nil
}

type fakeConnections struct {
	conn *models.MarketplaceConnection
	err  error
}

func (f fakeConnections) ActiveConnection(context.Context, uuid.UUID) (*models.MarketplaceConnection, error) {
	return f.conn, f.err
}

func connected() fakeConnections {
	return fakeConnections{conn: &models.MarketplaceConnection{ShopDomain: "acme.myshopify.com", AccessToken: "shpat", Active: true}}
}

func clientsFor(drafts *fakeDrafts) ShopClients {
	return func(string, string) (DraftOrderCreator, error) { return drafts, nil }
}

func strPtr(v string) *string { return &v }

func sampleOrder() *models.Order {
	return &models.Order{
		ID:               uuid.New(),
		BusinessID:       uuid.New(),
		OrderNumber:      "ORD-ACM-000007",
		Status:           enums.OrderStatusDraft,
		Currency:         enums.CurrencyUSD,
		DeliveryFeeCents: 300,
		Items: []models.OrderLineItem{
			{ID: uuid.New(), Name: "Taco box", VariantName: strPtr("Large"), Quantity: 2, UnitPriceCents: 500, ExternalVariantID: strPtr("gid://shopify/ProductVariant/42")},
			{ID: uuid.New(), Name: "Soda", Quantity: 1, UnitPriceCents: 150},
		},
	}
}

func TestMarketplaceLinesSkipsUnmapped(t *testing.T) {
	lines, skipped := MarketplaceLines(sampleOrder().Items)
	require.Len(t, lines, 1)
	require.Equal(t, uint64(42), lines[0].VariantID)
	require.Equal(t, 2, lines[0].Quantity)
	require.Len(t, skipped, 1)
	require.Equal(t, "Soda", skipped[0].Name)
}

func TestCashRequiresItems(t *testing.T) {
	_, err := Cash{}.CreatePaymentArtifact(context.Background(), &models.Order{})
	require.ErrorIs(t, err, errEmptyOrder)

	artifact, err := Cash{}.CreatePaymentArtifact(context.Background(), sampleOrder())
	require.NoError(t, err)
	require.Equal(t, enums.PaymentProviderCash, artifact.Provider)
	require.Empty(t, artifact.URL)
}

func TestHostedCheckoutBuildsLinesAndExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	checkout := &fakeCheckout{}
	hosted := NewHostedCheckout(checkout, 0)
	hosted.now = func() time.Time { return now }

	artifact, err := hosted.CreatePaymentArtifact(context.Background(), sampleOrder())
	require.NoError(t, err)
	require.Equal(t, enums.PaymentProviderStripe, artifact.Provider)
	require.Equal(t, "cs_test_ORD-ACM-000007", artifact.ExternalID)
	require.Equal(t, now.Add(24*time.Hour), *artifact.ExpiresAt)

	require.Equal(t, "USD", checkout.last.Currency)
	require.Len(t, checkout.last.Lines, 3)
	require.Equal(t, "Taco box (Large)", checkout.last.Lines[0].Name)
	require.Equal(t, int64(2), checkout.last.Lines[0].Quantity)
	require.Equal(t, "Delivery", checkout.last.Lines[2].Name)
	require.Equal(t, int64(300), checkout.last.Lines[2].UnitAmount)
}

func TestMarketplaceVariant(t *testing.T) {
	ctx := context.Background()

	_, err := NewMarketplace(fakeConnections{}, clientsFor(&fakeDrafts{}), 0).CreatePaymentArtifact(ctx, sampleOrder())
	require.ErrorIs(t, err, errNoConnection)

	unmapped := sampleOrder()
	unmapped.Items = unmapped.Items[1:]
	drafts := &fakeDrafts{}
	_, err = NewMarketplace(connected(), clientsFor(drafts), 0).CreatePaymentArtifact(ctx, unmapped)
	require.ErrorIs(t, err, errNothingMappable)
	require.Zero(t, drafts.calls)

	artifact, err := NewMarketplace(connected(), clientsFor(drafts), time.Hour).CreatePaymentArtifact(ctx, sampleOrder())
	require.NoError(t, err)
	require.Equal(t, enums.PaymentProviderShopify, artifact.Provider)
	require.Equal(t, "9001", artifact.ExternalID)
	require.Equal(t, "#D12", artifact.ExternalName)
	require.Len(t, artifact.SkippedItems, 1)
	require.Equal(t, "ORD-ACM-000007", drafts.last.OrderNumber)

	_, err = NewMarketplace(connected(), clientsFor(&fakeDrafts{err: errors.New("502")}), 0).CreatePaymentArtifact(ctx, sampleOrder())
	require.Error(t, err)
}
