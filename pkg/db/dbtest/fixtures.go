package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
)

// SeedBusiness inserts a USD business owned by a random user.
func SeedBusiness(t testing.TB, conn *gorm.DB, name string, deliveryFeeCents int64) models.Business {
	t.Helper()
	business := models.Business{
		ID:               uuid.New(),
		OwnerUserID:      uuid.New(),
		Name:             name,
		Currency:         enums.CurrencyUSD,
		DeliveryFeeCents: deliveryFeeCents,
	}
	if err := conn.Create(&business).Error; err != nil {
		t.Fatalf("seed business: %v", err)
	}
	return business
}

// SeedProduct inserts a product priced at priceCents with no variants.
func SeedProduct(t testing.TB, conn *gorm.DB, businessID uuid.UUID, name string, priceCents int64, externalVariantID *string) models.Product {
	t.Helper()
	product := models.Product{
		ID:                uuid.New(),
		BusinessID:        businessID,
		Name:              name,
		PriceCents:        priceCents,
		Currency:          enums.CurrencyUSD,
		ExternalVariantID: externalVariantID,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedVariant inserts a variant that tracks inventory with a deny policy.
func SeedVariant(t testing.TB, conn *gorm.DB, productID uuid.UUID, name string, quantity int, policy enums.InventoryPolicy) models.ProductVariant {
	t.Helper()
	variant := models.ProductVariant{
		ID:                uuid.New(),
		ProductID:         productID,
		Name:              name,
		InventoryQuantity: quantity,
		InventoryPolicy:   policy,
		TrackInventory:    true,
		Available:         true,
	}
	if err := conn.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant
}

// SeedConnection links a marketplace shop to the business.
func SeedConnection(t testing.TB, conn *gorm.DB, businessID uuid.UUID, shopDomain string) models.MarketplaceConnection {
	t.Helper()
	connection := models.MarketplaceConnection{
		ID:          uuid.New(),
		BusinessID:  businessID,
		ShopDomain:  shopDomain,
		AccessToken: "shpat_test",
		Active:      true,
	}
	if err := conn.Create(&connection).Error; err != nil {
		t.Fatalf("seed marketplace connection: %v", err)
	}
	return connection
}

// SeedOrder inserts an order in the given status with one line per item.
// Line and order totals are derived from the items.
func SeedOrder(t testing.TB, conn *gorm.DB, business models.Business, number string, status enums.OrderStatus, items ...models.OrderLineItem) models.Order {
	t.Helper()
	order := models.Order{
		ID:            uuid.New(),
		BusinessID:    business.ID,
		OrderNumber:   number,
		Status:        status,
		Currency:      business.Currency,
		DeliveryType:  enums.DeliveryTypePickup,
		PaymentStatus: enums.PaymentStatusPending,
	}
	for i := range items {
		item := items[i]
		item.ID = uuid.New()
		item.OrderID = order.ID
		item.Position = i
		item.TotalCents = item.UnitPriceCents * int64(item.Quantity)
		order.SubtotalCents += item.TotalCents
		order.Items = append(order.Items, item)
	}
	order.TotalCents = order.SubtotalCents
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// Line builds an order line for a product, optionally pinned to a variant.
func Line(product models.Product, variant *models.ProductVariant, quantity int) models.OrderLineItem {
	item := models.OrderLineItem{
		ProductID:         product.ID,
		Name:              product.Name,
		Quantity:          quantity,
		UnitPriceCents:    product.PriceCents,
		ExternalVariantID: product.ExternalVariantID,
	}
	if variant != nil {
		id := variant.ID
		name := variant.Name
		item.VariantID = &id
		item.VariantName = &name
		if variant.PriceCents != nil {
			item.UnitPriceCents = *variant.PriceCents
		}
		if variant.ExternalVariantID != nil {
			item.ExternalVariantID = variant.ExternalVariantID
		}
	}
	return item
}

// EventTypes lists the outbox event types emitted for an aggregate, oldest first.
func EventTypes(t testing.TB, conn *gorm.DB, aggregateID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	if err := conn.Where("aggregate_id = ?", aggregateID).Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load outbox events: %v", err)
	}
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}
