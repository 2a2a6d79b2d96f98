package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
)

// LineSnapshot is the catalog state copied onto an order line when it is added.
type LineSnapshot struct {
	ProductID         uuid.UUID
	VariantID         *uuid.UUID
	Name              string
	VariantName       *string
	SKU               *string
	ExternalVariantID *string
	UnitPriceCents    int64
	Currency          enums.Currency
}

type reader interface {
	GetProduct(ctx context.Context, businessID, productID uuid.UUID) (*models.Product, error)
	GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
}

// Snapshotter resolves product and variant references into line snapshots.
type Snapshotter struct {
	catalog reader
}

func NewSnapshotter(catalog reader) *Snapshotter {
	return &Snapshotter{catalog: catalog}
}

// Snapshot validates the reference and copies the sellable fields. Variant
// price, sku and external id override the product's when present.
func (s *Snapshotter) Snapshot(ctx context.Context, businessID, productID uuid.UUID, variantID *uuid.UUID) (*LineSnapshot, error) {
	product, err := s.catalog.GetProduct(ctx, businessID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if product.IsDeleted() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %q is no longer available", product.Name))
	}

	snap := &LineSnapshot{
		ProductID:         product.ID,
		Name:              product.Name,
		SKU:               product.SKU,
		ExternalVariantID: product.ExternalVariantID,
		UnitPriceCents:    product.PriceCents,
		Currency:          product.Currency,
	}
	if variantID == nil || *variantID == uuid.Nil {
		return snap, nil
	}

	variant, err := s.catalog.GetVariant(ctx, product.ID, *variantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant")
	}
	if variant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	if !variant.Available {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s (%s) is out of stock", product.Name, variant.Name))
	}

	id := variant.ID
	name := variant.Name
	snap.VariantID = &id
	snap.VariantName = &name
	if variant.PriceCents != nil {
		snap.UnitPriceCents = *variant.PriceCents
	}
	if variant.SKU != nil {
		snap.SKU = variant.SKU
	}
	if variant.ExternalVariantID != nil {
		snap.ExternalVariantID = variant.ExternalVariantID
	}
	return snap, nil
}
