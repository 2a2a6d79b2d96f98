// Package marketplace mirrors committed orders into the connected storefront.
package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/payments"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/shopify"
)

type orderStore interface {
	FindByID(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error)
	LockTx(tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	UpdateTx(tx *gorm.DB, order *models.Order, columns ...string) error
}

type connectionLookup interface {
	ActiveConnection(ctx context.Context, businessID uuid.UUID) (*models.MarketplaceConnection, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OrderCreator is the storefront call the syncer needs.
type OrderCreator interface {
	CreateOrder(ctx context.Context, in shopify.OrderInput) (*shopify.Order, error)
}

// Clients builds a storefront client for a stored connection.
type Clients func(shopDomain, accessToken string) (OrderCreator, error)

// Sync results.
const (
	SyncCreated       = "created"
	SyncAlreadyLinked = "already_linked"
	SyncNotConnected  = "not_connected"
	SyncNotCommitted  = "not_committed"
	SyncNothingToMap  = "nothing_mappable"
)

// Syncer creates a storefront order for committed orders that do not have
// one yet.
type Syncer struct {
	orders      orderStore
	connections connectionLookup
	clients     Clients
	tx          txRunner
	logg        *logger.Logger
}

func NewSyncer(store orderStore, connections connectionLookup, clients Clients, tx txRunner, logg *logger.Logger) (*Syncer, error) {
	if store == nil {
		return nil, errors.New("order store required")
	}
	if connections == nil {
		return nil, errors.New("connection lookup required")
	}
	if clients == nil {
		return nil, errors.New("marketplace clients required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	return &Syncer{orders: store, connections: connections, clients: clients, tx: tx, logg: logg}, nil
}

// Sync mirrors the order. A draft-order payment already produced a storefront
// order, so orders carrying a draft or order id are left alone.
func (s *Syncer) Sync(ctx context.Context, businessID, orderID uuid.UUID) (string, error) {
	order, err := s.orders.FindByID(ctx, businessID, orderID)
	if err != nil {
		return "", fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return "", fmt.Errorf("order %s not found", orderID)
	}
	if linked(order) {
		return SyncAlreadyLinked, nil
	}
	switch order.Status {
	case enums.OrderStatusDraft, enums.OrderStatusCancelled:
		return SyncNotCommitted, nil
	}

	conn, err := s.connections.ActiveConnection(ctx, businessID)
	if err != nil {
		return "", fmt.Errorf("load marketplace connection: %w", err)
	}
	if conn == nil {
		return SyncNotConnected, nil
	}

	lines, skipped := payments.MarketplaceLines(order.Items)
	if len(lines) == 0 {
		return SyncNothingToMap, nil
	}
	client, err := s.clients(conn.ShopDomain, conn.AccessToken)
	if err != nil {
		return "", err
	}
	created, err := client.CreateOrder(ctx, shopify.OrderInput{
		OrderNumber: order.OrderNumber,
		Currency:    order.Currency.String(),
		Note:        "Echo order " + order.OrderNumber,
		Paid:        order.PaymentStatus == enums.PaymentStatusPaid,
		Lines:       lines,
	})
	if err != nil {
		return "", err
	}
	if len(skipped) > 0 && s.logg != nil {
		s.logg.Warn(ctx, fmt.Sprintf("order %s synced without %d unmapped items", order.OrderNumber, len(skipped)))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.orders.LockTx(tx, order.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return fmt.Errorf("order %s disappeared", order.ID)
		}
		if linked(locked) {
			return fmt.Errorf("order %s was linked to another marketplace order while syncing", locked.OrderNumber)
		}
		locked.MarketplaceOrderID = &created.ID
		locked.MarketplaceOrderName = &created.Name
		return s.orders.UpdateTx(tx, locked, "marketplace_order_id", "marketplace_order_number")
	})
	if err != nil {
		return "", fmt.Errorf("record marketplace order %s: %w", created.ID, err)
	}
	if s.logg != nil {
		s.logg.Info(ctx, fmt.Sprintf("order %s mirrored as marketplace order %s", order.OrderNumber, created.Name))
	}
	return SyncCreated, nil
}

// linked reports whether the storefront already holds this order: either a
// mirrored order was recorded or the customer paid the marketplace draft,
// which the storefront converts into an order itself. An abandoned draft on
// an order committed another way does not count.
func linked(order *models.Order) bool {
	if order.MarketplaceOrderID != nil && *order.MarketplaceOrderID != "" {
		return true
	}
	return order.MarketplaceDraftID != nil && *order.MarketplaceDraftID != "" &&
		order.PaymentProvider != nil && *order.PaymentProvider == enums.PaymentProviderShopify &&
		order.PaymentStatus == enums.PaymentStatusPaid
}
