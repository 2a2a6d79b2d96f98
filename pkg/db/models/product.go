package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
)

// Product is a catalog entry sold by a business.
type Product struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BusinessID        uuid.UUID        `gorm:"column:business_id;type:uuid;not null"`
	Name              string           `gorm:"column:name;not null"`
	SKU               *string          `gorm:"column:sku"`
	PriceCents        int64            `gorm:"column:price_cents;not null"`
	Currency          enums.Currency   `gorm:"column:currency;type:text;not null;default:'USD'"`
	ExternalVariantID *string          `gorm:"column:external_variant_id"`
	DeletedAt         *time.Time       `gorm:"column:deleted_at"`
	Variants          []ProductVariant `gorm:"foreignKey:ProductID"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// IsDeleted reports whether the product was removed from the catalog.
func (p Product) IsDeleted() bool {
	return p.DeletedAt != nil
}

// ProductVariant is a purchasable option of a product and the unit of inventory.
type ProductVariant struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID         uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	Name              string                `gorm:"column:name;not null"`
	SKU               *string               `gorm:"column:sku"`
	PriceCents        *int64                `gorm:"column:price_cents"`
	InventoryQuantity int                   `gorm:"column:inventory_quantity;not null;default:0"`
	InventoryPolicy   enums.InventoryPolicy `gorm:"column:inventory_policy;type:text;not null;default:'deny'"`
	TrackInventory    bool                  `gorm:"column:track_inventory;not null;default:false"`
	Available         bool                  `gorm:"column:available;not null;default:true"`
	ExternalVariantID *string               `gorm:"column:external_variant_id"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
