package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
)

// InventoryAdjustment records one applied stock movement for an order line.
// Requested is what the order asked for; Applied is what the floor allowed.
type InventoryAdjustment struct {
	ID        uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID                `gorm:"column:order_id;type:uuid;not null"`
	VariantID uuid.UUID                `gorm:"column:variant_id;type:uuid;not null"`
	Direction enums.InventoryDirection `gorm:"column:direction;type:text;not null"`
	Requested int                      `gorm:"column:requested;not null"`
	Applied   int                      `gorm:"column:applied;not null"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime"`
}
