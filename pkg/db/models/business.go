package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
)

// Business is the tenant that owns products, orders, and integrations.
type Business struct {
	ID               uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerUserID      uuid.UUID      `gorm:"column:owner_user_id;type:uuid;not null"`
	Name             string         `gorm:"column:name;not null"`
	Currency         enums.Currency `gorm:"column:currency;type:text;not null;default:'USD'"`
	DeliveryFeeCents int64          `gorm:"column:delivery_fee_cents;not null;default:0"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// BusinessMember grants a user staff access to a business.
type BusinessMember struct {
	BusinessID uuid.UUID        `gorm:"column:business_id;type:uuid;primaryKey"`
	UserID     uuid.UUID        `gorm:"column:user_id;type:uuid;primaryKey"`
	Role       enums.MemberRole `gorm:"column:role;type:text;not null;default:'staff'"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
}

// MarketplaceConnection stores the storefront credentials of a business.
type MarketplaceConnection struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BusinessID  uuid.UUID `gorm:"column:business_id;type:uuid;not null;uniqueIndex"`
	ShopDomain  string    `gorm:"column:shop_domain;not null"`
	AccessToken string    `gorm:"column:access_token;not null"`
	Active      bool      `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
