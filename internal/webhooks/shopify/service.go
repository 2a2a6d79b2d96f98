package shopifywebhook

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/internal/webhooks"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
)

var provider = string(enums.PaymentProviderShopify)

// Delivery is one verified marketplace webhook request.
type Delivery struct {
	Topic      string
	ShopDomain string
	WebhookID  string
	Body       []byte
}

// OrderPayload is the part of the marketplace order resource the reconciler
// reads.
type OrderPayload struct {
	ID              uint64  `json:"id"`
	Name            string  `json:"name"`
	FinancialStatus string  `json:"financial_status"`
	Tags            string  `json:"tags"`
	DraftOrderID    *uint64 `json:"draft_order_id,omitempty"`
}

type orderLocker interface {
	LockByMarketplaceDraftTx(tx *gorm.DB, draftID string) (*models.Order, error)
	LockByMarketplaceOrderTx(tx *gorm.DB, marketplaceOrderID string) (*models.Order, error)
	LockByNumberTx(tx *gorm.DB, businessID uuid.UUID, number string) (*models.Order, error)
}

type connectionLookup interface {
	ConnectionByShopDomain(ctx context.Context, shopDomain string) (*models.MarketplaceConnection, error)
}

type reconciler interface {
	Apply(ctx context.Context, provider string, locate webhooks.Locator, signal orders.PaymentSignal, patch webhooks.Patch) (string, error)
	Skip(ctx context.Context, provider, detail string) string
}

// Service reconciles marketplace order webhooks with orders.
type Service struct {
	orders      orderLocker
	connections connectionLookup
	reconciler  reconciler
}

func NewService(store orderLocker, connections connectionLookup, rec reconciler) (*Service, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repository required")
	}
	if connections == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "connection lookup required")
	}
	if rec == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	return &Service{orders: store, connections: connections, reconciler: rec}, nil
}

// SignalFor maps a marketplace financial status to a payment signal. The
// second return is false for statuses that carry no settled outcome.
func SignalFor(financialStatus string) (orders.PaymentSignal, bool) {
	status, err := enums.ParseMarketplaceFinancialStatus(strings.ToLower(strings.TrimSpace(financialStatus)))
	switch {
	case err != nil:
		return "", false
	case status.SettlesPayment():
		return orders.SignalPaid, true
	case status.ReversesPayment():
		return orders.SignalRefunded, true
	}
	return "", false
}

// OrderNumberTag returns the first tag shaped like a local order number.
func OrderNumberTag(tags string) (string, bool) {
	for _, tag := range strings.Split(tags, ",") {
		tag = strings.ToUpper(strings.TrimSpace(tag))
		if orders.IsOrderNumber(tag) {
			return tag, true
		}
	}
	return "", false
}

// HandleDelivery applies one marketplace order webhook and returns its
// outcome. Deliveries that resolve to no order are dropped.
func (s *Service) HandleDelivery(ctx context.Context, d Delivery) (string, error) {
	if !strings.HasPrefix(d.Topic, "orders/") {
		return s.reconciler.Skip(ctx, provider, "unhandled topic "+d.Topic), nil
	}

	var payload OrderPayload
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode order payload")
	}
	signal, ok := SignalFor(payload.FinancialStatus)
	if !ok {
		return s.reconciler.Skip(ctx, provider, "financial status "+payload.FinancialStatus), nil
	}

	conn, err := s.connections.ConnectionByShopDomain(ctx, d.ShopDomain)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve shop connection")
	}
	if conn == nil {
		return s.reconciler.Skip(ctx, provider, "unknown shop "+d.ShopDomain), nil
	}

	locate := func(tx *gorm.DB) (*models.Order, error) {
		order, err := s.resolve(tx, conn.BusinessID, payload)
		if err != nil || order == nil {
			return nil, err
		}
		if order.BusinessID != conn.BusinessID {
			return nil, nil
		}
		return order, nil
	}
	return s.reconciler.Apply(ctx, provider, locate, signal, correlate(payload))
}

// resolve joins the payload to an order by draft id, then by marketplace
// order id, then by an order-number tag within the shop's business.
func (s *Service) resolve(tx *gorm.DB, businessID uuid.UUID, payload OrderPayload) (*models.Order, error) {
	if payload.DraftOrderID != nil && *payload.DraftOrderID != 0 {
		order, err := s.orders.LockByMarketplaceDraftTx(tx, strconv.FormatUint(*payload.DraftOrderID, 10))
		if err != nil || order != nil {
			return order, err
		}
	}
	if payload.ID != 0 {
		order, err := s.orders.LockByMarketplaceOrderTx(tx, strconv.FormatUint(payload.ID, 10))
		if err != nil || order != nil {
			return order, err
		}
	}
	if number, ok := OrderNumberTag(payload.Tags); ok {
		return s.orders.LockByNumberTx(tx, businessID, number)
	}
	return nil, nil
}

func correlate(payload OrderPayload) webhooks.Patch {
	return func(order *models.Order) []string {
		if payload.ID == 0 {
			return nil
		}
		var columns []string
		id := strconv.FormatUint(payload.ID, 10)
		if order.MarketplaceOrderID == nil || *order.MarketplaceOrderID != id {
			order.MarketplaceOrderID = &id
			columns = append(columns, "marketplace_order_id")
		}
		if name := strings.TrimSpace(payload.Name); name != "" && (order.MarketplaceOrderName == nil || *order.MarketplaceOrderName != name) {
			order.MarketplaceOrderName = &name
			columns = append(columns, "marketplace_order_number")
		}
		return columns
	}
}
