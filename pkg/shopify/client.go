package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/echo-commerce-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
)

const requestTimeout = 15 * time.Second

var (
	errShopDomainRequired = errors.New("shopify shop domain is required")
	errTokenRequired      = errors.New("shopify access token is required")
)

// DraftLine is one variant line on a marketplace draft order.
type DraftLine struct {
	VariantID  uint64
	Quantity   int
	Title      string
	PriceCents int64
}

type DraftOrderInput struct {
	OrderNumber string
	Currency    string
	Note        string
	Lines       []DraftLine
}

// DraftOrder is the subset of the created draft the order keeps.
type DraftOrder struct {
	ID         string
	Name       string
	InvoiceURL string
}

// Client is a per-shop marketplace client bound to one connection.
type Client struct {
	api        *goshopify.Client
	shopDomain string
	logg       *logger.Logger
}

// Factory builds shop clients from stored connections.
type Factory struct {
	app        goshopify.App
	apiVersion string
	httpClient *http.Client
	logg       *logger.Logger
}

func NewFactory(cfg config.ShopifyConfig, logg *logger.Logger) *Factory {
	return &Factory{
		app:        goshopify.App{ApiKey: cfg.AppName},
		apiVersion: strings.TrimSpace(cfg.APIVersion),
		httpClient: &http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logg: logg,
	}
}

// ForShop returns a client authenticated with the shop's access token.
func (f *Factory) ForShop(shopDomain, accessToken string) (*Client, error) {
	shopDomain = strings.TrimSpace(shopDomain)
	if shopDomain == "" {
		return nil, errShopDomainRequired
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, errTokenRequired
	}
	opts := []goshopify.Option{goshopify.WithHTTPClient(f.httpClient)}
	if f.apiVersion != "" {
		opts = append(opts, goshopify.WithVersion(f.apiVersion))
	}
	api, err := goshopify.NewClient(f.app, shopDomain, accessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create shopify client: %w", err)
	}
	return &Client{api: api, shopDomain: shopDomain, logg: f.logg}, nil
}

// CreateDraftOrder creates a draft tagged with the local order number so
// webhooks can be joined back to it.
func (c *Client) CreateDraftOrder(ctx context.Context, in DraftOrderInput) (*DraftOrder, error) {
	draft := goshopify.DraftOrder{
		Tags:      in.OrderNumber,
		Note:      in.Note,
		Currency:  strings.ToUpper(in.Currency),
		LineItems: make([]goshopify.LineItem, 0, len(in.Lines)),
	}
	for _, line := range in.Lines {
		price := decimal.NewFromInt(line.PriceCents).Shift(-2)
		draft.LineItems = append(draft.LineItems, goshopify.LineItem{
			VariantId: line.VariantID,
			Quantity:  line.Quantity,
			Title:     line.Title,
			Price:     &price,
		})
	}

	created, err := c.api.DraftOrder.Create(ctx, draft)
	if err != nil {
		return nil, c.mapError(ctx, "draft_order.create", err)
	}
	return &DraftOrder{
		ID:         strconv.FormatUint(created.Id, 10),
		Name:       created.Name,
		InvoiceURL: created.InvoiceURL,
	}, nil
}

// OrderInput describes a regular marketplace order mirrored from a local one.
type OrderInput struct {
	OrderNumber string
	Currency    string
	Note        string
	Paid        bool
	Lines       []DraftLine
}

// Order is the subset of the created marketplace order the local order keeps.
type Order struct {
	ID   string
	Name string
}

// CreateOrder mirrors an already committed local order into the shop. Cash
// orders are created pending; orders paid through hosted checkout as paid.
func (c *Client) CreateOrder(ctx context.Context, in OrderInput) (*Order, error) {
	order := goshopify.Order{
		Tags:            in.OrderNumber,
		Note:            in.Note,
		Currency:        strings.ToUpper(in.Currency),
		FinancialStatus: goshopify.OrderFinancialStatusPending,
		LineItems:       make([]goshopify.LineItem, 0, len(in.Lines)),
	}
	if in.Paid {
		order.FinancialStatus = goshopify.OrderFinancialStatusPaid
	}
	for _, line := range in.Lines {
		price := decimal.NewFromInt(line.PriceCents).Shift(-2)
		order.LineItems = append(order.LineItems, goshopify.LineItem{
			VariantId: line.VariantID,
			Quantity:  line.Quantity,
			Title:     line.Title,
			Price:     &price,
		})
	}

	created, err := c.api.Order.Create(ctx, order)
	if err != nil {
		return nil, c.mapError(ctx, "order.create", err)
	}
	return &Order{ID: strconv.FormatUint(created.Id, 10), Name: created.Name}, nil
}

func (c *Client) ShopDomain() string {
	return c.shopDomain
}

// ParseVariantID converts a stored external variant id into the numeric id
// the Admin API expects. Both plain ids and gid:// forms are accepted.
func ParseVariantID(raw string) (uint64, bool) {
	raw = strings.TrimSpace(raw)
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		raw = raw[idx+1:]
	}
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (c *Client) mapError(ctx context.Context, op string, err error) error {
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"shop_domain": c.shopDomain,
			"operation":   op,
		})
		c.logg.Warn(logCtx, fmt.Sprintf("shopify %s failed: %v", op, err))
	}
	return pkgerrors.Wrap(codeForError(err), err, fmt.Sprintf("shopify %s failed", op))
}

func codeForError(err error) pkgerrors.Code {
	var rateErr goshopify.RateLimitError
	if errors.As(err, &rateErr) {
		return pkgerrors.CodeRateLimit
	}
	var respErr goshopify.ResponseError
	if errors.As(err, &respErr) {
		return domainCodeForStatus(respErr.Status)
	}
	var respErrPtr *goshopify.ResponseError
	if errors.As(err, &respErrPtr) && respErrPtr != nil {
		return domainCodeForStatus(respErrPtr.Status)
	}
	return pkgerrors.CodeDependency
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}
