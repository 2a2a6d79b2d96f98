package businesses

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/repo"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
)

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Business, error) {
	var business models.Business
	if err := r.DB(ctx).Where("id = ?", id).First(&business).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &business, nil
}

// HasAccess reports whether the user owns the business or is one of its members.
func (r *Repository) HasAccess(ctx context.Context, businessID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Business{}).
		Where("id = ? AND owner_user_id = ?", businessID, userID).
		Count(&count).Error
	if err != nil || count > 0 {
		return count > 0, err
	}
	err = r.DB(ctx).Model(&models.BusinessMember{}).
		Where("business_id = ? AND user_id = ?", businessID, userID).
		Count(&count).Error
	return count > 0, err
}

// ActiveConnection returns the business's active marketplace connection, if any.
func (r *Repository) ActiveConnection(ctx context.Context, businessID uuid.UUID) (*models.MarketplaceConnection, error) {
	var conn models.MarketplaceConnection
	err := r.DB(ctx).
		Where("business_id = ? AND active = ?", businessID, true).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

// ConnectionByShopDomain resolves the business behind a webhook's shop header.
func (r *Repository) ConnectionByShopDomain(ctx context.Context, shopDomain string) (*models.MarketplaceConnection, error) {
	var conn models.MarketplaceConnection
	err := r.DB(ctx).
		Where("LOWER(shop_domain) = ?", strings.ToLower(strings.TrimSpace(shopDomain))).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}
