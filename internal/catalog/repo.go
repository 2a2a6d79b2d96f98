package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/repo"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
)

// Repository is the read side of the catalog plus the row-locked variant
// access the inventory adjuster needs.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// GetProduct returns the product scoped to the business, soft-deleted rows included.
func (r *Repository) GetProduct(ctx context.Context, businessID, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.DB(ctx).
		Where("id = ? AND business_id = ?", productID, businessID).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// GetVariant returns the variant only when it belongs to productID.
func (r *Repository) GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.DB(ctx).
		Where("id = ? AND product_id = ?", variantID, productID).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &variant, nil
}

// LockVariantTx loads a variant with FOR UPDATE.
func (r *Repository) LockVariantTx(tx *gorm.DB, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := repo.ForUpdate(tx).
		Where("id = ?", variantID).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// SaveInventoryTx writes the stock columns of a locked variant.
func (r *Repository) SaveInventoryTx(tx *gorm.DB, variant *models.ProductVariant) error {
	return tx.Model(&models.ProductVariant{}).
		Where("id = ?", variant.ID).
		Updates(map[string]any{
			"inventory_quantity": variant.InventoryQuantity,
			"available":          variant.Available,
		}).Error
}
