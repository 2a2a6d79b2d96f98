package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/echo-commerce-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
)

func TestDomainCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{http.StatusForbidden, pkgerrors.CodeForbidden},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusTooManyRequests, pkgerrors.CodeRateLimit},
		{http.StatusUnprocessableEntity, pkgerrors.CodeValidation},
		{http.StatusBadGateway, pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		require.Equal(t, tt.code, domainCodeForStatus(tt.status), "status %d", tt.status)
	}
}

func TestCodeForError(t *testing.T) {
	require.Equal(t, pkgerrors.CodeValidation, codeForError(goshopify.ResponseError{Status: http.StatusUnprocessableEntity}))
	require.Equal(t, pkgerrors.CodeRateLimit, codeForError(goshopify.RateLimitError{RetryAfter: 2}))
	require.Equal(t, pkgerrors.CodeDependency, codeForError(errors.New("dial tcp: timeout")))
}

func TestParseVariantID(t *testing.T) {
	id, ok := ParseVariantID("gid://shopify/ProductVariant/4242")
	require.True(t, ok)
	require.Equal(t, uint64(4242), id)

	id, ok = ParseVariantID(" 77 ")
	require.True(t, ok)
	require.Equal(t, uint64(77), id)

	_, ok = ParseVariantID("")
	require.False(t, ok)
	_, ok = ParseVariantID("abc")
	require.False(t, ok)
	_, ok = ParseVariantID("0")
	require.False(t, ok)
}

func TestForShopValidates(t *testing.T) {
	factory := NewFactory(config.ShopifyConfig{AppName: "echo", APIVersion: "2024-10"}, nil)

	_, err := factory.ForShop("", "token")
	require.ErrorIs(t, err, errShopDomainRequired)
	_, err = factory.ForShop("acme.myshopify.com", " ")
	require.ErrorIs(t, err, errTokenRequired)

	client, err := factory.ForShop("acme.myshopify.com", "shpat_123")
	require.NoError(t, err)
	require.Equal(t, "acme.myshopify.com", client.ShopDomain())
}

func TestVerifyWebhook(t *testing.T) {
	body := []byte(`{"id":1,"financial_status":"paid"}`)
	sig := Sign(body, "shh")

	require.True(t, VerifyWebhook(body, sig, "shh"))
	require.False(t, VerifyWebhook(body, sig, "other"))
	require.False(t, VerifyWebhook([]byte(`{}`), sig, "shh"))
	require.False(t, VerifyWebhook(body, "not-base64!", "shh"))
	require.False(t, VerifyWebhook(body, "", "shh"))
}

type shopRedirect struct {
	target *url.URL
}

func (r shopRedirect) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = r.target.Scheme
	req.URL.Host = r.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func testShopClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	factory := NewFactory(config.ShopifyConfig{APIVersion: "2024-10"}, nil)
	factory.httpClient = &http.Client{Transport: shopRedirect{target: target}}
	client, err := factory.ForShop("acme.myshopify.com", "shpat_test")
	require.NoError(t, err)
	return client
}

func TestCreateDraftOrderReturnsInvoiceURL(t *testing.T) {
	var (
		method, path, token string
		sent                struct {
			DraftOrder goshopify.DraftOrder `json:"draft_order"`
		}
	)
	client := testShopClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path, token = r.Method, r.URL.Path, r.Header.Get("X-Shopify-Access-Token")
		_ = json.NewDecoder(r.Body).Decode(&sent)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"draft_order":{"id":987654321,"name":"#D12","invoice_url":"https://acme.myshopify.com/1/invoices/abc"}}`)
	})

	draft, err := client.CreateDraftOrder(context.Background(), DraftOrderInput{
		OrderNumber: "ORD-ACM-000007",
		Currency:    "usd",
		Lines:       []DraftLine{{VariantID: 42, Quantity: 2, Title: "Tote", PriceCents: 1250}},
	})
	require.NoError(t, err)
	require.Equal(t, "987654321", draft.ID)
	require.Equal(t, "#D12", draft.Name)
	require.Equal(t, "https://acme.myshopify.com/1/invoices/abc", draft.InvoiceURL)

	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "/admin/api/2024-10/draft_orders.json", path)
	require.Equal(t, "shpat_test", token)

	require.Equal(t, "ORD-ACM-000007", sent.DraftOrder.Tags)
	require.Equal(t, "USD", sent.DraftOrder.Currency)
	require.Len(t, sent.DraftOrder.LineItems, 1)
	require.Equal(t, uint64(42), sent.DraftOrder.LineItems[0].VariantId)
	require.Equal(t, "12.5", sent.DraftOrder.LineItems[0].Price.String())
}

func TestCreateDraftOrderMapsRejection(t *testing.T) {
	client := testShopClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"errors":{"line_items":["is invalid"]}}`)
	})

	_, err := client.CreateDraftOrder(context.Background(), DraftOrderInput{OrderNumber: "ORD-ACM-000008", Currency: "USD"})
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}
