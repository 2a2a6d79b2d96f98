package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/catalog"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/pagination"
	"github.com/angelmondragon/echo-commerce-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type businessLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Business, error)
}

type snapshotter interface {
	Snapshot(ctx context.Context, businessID, productID uuid.UUID, variantID *uuid.UUID) (*catalog.LineSnapshot, error)
}

type numberAllocator interface {
	Next(ctx context.Context, businessID uuid.UUID, businessName string) (Allocation, error)
	Resync(ctx context.Context, businessID uuid.UUID, businessName string) error
}

type ServiceParams struct {
	Repo       *Repository
	Businesses businessLookup
	Catalog    snapshotter
	Numbers    numberAllocator
	Tx         txRunner
	Outbox     outboxEmitter
	Logger     *logger.Logger
	Now        func() time.Time
}

// Service owns the order aggregate: creation, draft mutations and cash confirmation.
type Service struct {
	repo       *Repository
	businesses businessLookup
	catalog    snapshotter
	numbers    numberAllocator
	tx         txRunner
	outbox     outboxEmitter
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Businesses == nil:
		return nil, fmt.Errorf("business lookup required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog snapshotter required")
	case params.Numbers == nil:
		return nil, fmt.Errorf("order number allocator required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:       params.Repo,
		businesses: params.Businesses,
		catalog:    params.Catalog,
		numbers:    params.Numbers,
		tx:         params.Tx,
		outbox:     params.Outbox,
		logg:       params.Logger,
		now:        now,
	}, nil
}

// Create builds a draft order with snapshotted items and a freshly allocated number.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.BusinessID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business id required")
	}
	business, err := s.businesses.FindByID(ctx, input.BusinessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load business")
	}
	if business == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "business not found")
	}

	order := &models.Order{
		ID:             uuid.New(),
		BusinessID:     business.ID,
		ConversationID: input.ConversationID,
		ContactPhone:   trimmedPtr(input.ContactPhone),
		Status:         enums.OrderStatusDraft,
		Currency:       business.Currency,
		DeliveryType:   enums.DeliveryTypePickup,
		PaymentStatus:  enums.PaymentStatusPending,
	}
	if input.DeliveryType != nil {
		if err := applyDelivery(order, *input.DeliveryType, input.DeliveryAddress, nil, business); err != nil {
			return nil, err
		}
	}
	for _, in := range input.Items {
		snap, err := s.snapshotLine(ctx, business.ID, in)
		if err != nil {
			return nil, err
		}
		if err := addLine(order, in, snap); err != nil {
			return nil, err
		}
	}
	Recalculate(order)

	for attempt := 0; ; attempt++ {
		alloc, err := s.numbers.Next(ctx, business.ID, business.Name)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}
		order.OrderNumber = alloc.Number

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.CreateTx(tx, order); err != nil {
				return err
			}
			return s.repo.RecordSequenceTx(tx, business.ID, alloc.Prefix, alloc.Seq)
		})
		if err == nil {
			break
		}
		if attempt == 0 && db.IsUniqueViolation(err, orderNumberConstraint) {
			s.warn(ctx, order, fmt.Sprintf("order number %s already taken; resyncing counter", alloc.Number))
			if syncErr := s.numbers.Resync(ctx, business.ID, business.Name); syncErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, syncErr, "resync order counter")
			}
			continue
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithBusinessID(ctx, business.ID.String()), order.ID.String())
		s.logg.Info(logCtx, fmt.Sprintf("order %s created with %d items", order.OrderNumber, len(order.Items)))
	}
	return order, nil
}

func (s *Service) Get(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, businessID, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *Service) GetByNumber(ctx context.Context, businessID uuid.UUID, number string) (*models.Order, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if !IsOrderNumber(number) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must look like ORD-ABC-000001")
	}
	order, err := s.repo.FindByNumber(ctx, businessID, number)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *Service) List(ctx context.Context, businessID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	list, err := s.repo.List(ctx, businessID, params, filters)
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return list, nil
}

func (s *Service) ListByConversation(ctx context.Context, businessID, conversationID uuid.UUID) ([]models.Order, error) {
	orders, err := s.repo.ListByConversation(ctx, businessID, conversationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list conversation orders")
	}
	return orders, nil
}

// AddItem appends a line, or grows the existing line for the same product/variant.
// The catalog is read before the order row is locked.
func (s *Service) AddItem(ctx context.Context, input AddItemInput) (*models.Order, error) {
	snap, err := s.snapshotLine(ctx, input.BusinessID, input.Item)
	if err != nil {
		return nil, asDomainError(err, "modify items")
	}
	return s.mutatePricing(ctx, input.BusinessID, input.OrderID, "modify items", func(tx *gorm.DB, order *models.Order) error {
		before := len(order.Items)
		if err := addLine(order, input.Item, snap); err != nil {
			return err
		}
		Recalculate(order)
		if len(order.Items) > before {
			item := &order.Items[len(order.Items)-1]
			item.OrderID = order.ID
			if err := s.repo.CreateItemTx(tx, item); err != nil {
				return err
			}
		} else {
			for i := range order.Items {
				if sameLine(order.Items[i], input.Item) {
					if err := s.repo.UpdateItemQuantityTx(tx, &order.Items[i]); err != nil {
						return err
					}
				}
			}
		}
		return s.repo.SaveTotalsTx(tx, order)
	})
}

// UpdateItemQuantity sets a line's quantity; zero removes the line.
func (s *Service) UpdateItemQuantity(ctx context.Context, input UpdateItemInput) (*models.Order, error) {
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if input.Quantity == 0 {
		return s.RemoveItem(ctx, input.BusinessID, input.OrderID, input.ItemID)
	}
	return s.mutatePricing(ctx, input.BusinessID, input.OrderID, "modify items", func(tx *gorm.DB, order *models.Order) error {
		idx := findItem(order, input.ItemID)
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		order.Items[idx].Quantity = input.Quantity
		Recalculate(order)
		if err := s.repo.UpdateItemQuantityTx(tx, &order.Items[idx]); err != nil {
			return err
		}
		return s.repo.SaveTotalsTx(tx, order)
	})
}

func (s *Service) RemoveItem(ctx context.Context, businessID, orderID, itemID uuid.UUID) (*models.Order, error) {
	return s.mutatePricing(ctx, businessID, orderID, "modify items", func(tx *gorm.DB, order *models.Order) error {
		idx := findItem(order, itemID)
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		order.Items = append(order.Items[:idx], order.Items[idx+1:]...)
		Recalculate(order)
		if err := s.repo.DeleteItemTx(tx, order.ID, itemID); err != nil {
			return err
		}
		return s.repo.SaveTotalsTx(tx, order)
	})
}

func (s *Service) SetDelivery(ctx context.Context, input DeliveryInput) (*models.Order, error) {
	business, err := s.businesses.FindByID(ctx, input.BusinessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load business")
	}
	if business == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "business not found")
	}
	return s.mutatePricing(ctx, input.BusinessID, input.OrderID, "change delivery", func(tx *gorm.DB, order *models.Order) error {
		if err := applyDelivery(order, input.Type, input.Address, input.FeeCents, business); err != nil {
			return err
		}
		Recalculate(order)
		return s.repo.UpdateTx(tx, order,
			"delivery_type", "delivery_address", "subtotal_cents", "delivery_fee_cents", "total_cents")
	})
}

// SelectCard records card as the payment method; the link is generated separately.
func (s *Service) SelectCard(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error) {
	return s.mutateDraft(ctx, businessID, orderID, "set the payment method", func(tx *gorm.DB, order *models.Order) error {
		method := enums.PaymentMethodCard
		order.PaymentMethod = &method
		return s.repo.UpdateTx(tx, order, "payment_method")
	})
}

// ConfirmCash commits the cash path: draft -> confirmed with provider cash.
// Stock decrement and marketplace sync are queued through the outbox.
func (s *Service) ConfirmCash(ctx context.Context, businessID, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lockOwned(tx, businessID, orderID)
		if err != nil {
			return err
		}
		if err := RequireTransition(order.Status, enums.OrderStatusConfirmed); err != nil {
			return err
		}
		if len(order.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "order has no items")
		}
		if err := validateDelivery(order); err != nil {
			return err
		}

		now := s.now()
		previous := order.Status
		method := enums.PaymentMethodCash
		provider := enums.PaymentProviderCash
		order.PaymentMethod = &method
		order.PaymentProvider = &provider
		if err := ApplyTransition(order, enums.OrderStatusConfirmed, now); err != nil {
			return err
		}
		columns := []string{"status", "payment_method", "payment_provider", "confirmed_at"}
		// A card link from an earlier attempt is no longer offered. Its
		// correlation ids stay so a late payment still finds the order.
		if order.PaymentLinkURL != nil {
			order.PaymentLinkURL = nil
			order.PaymentLinkExpiresAt = nil
			columns = append(columns, "payment_link_url", "payment_link_expires_at")
		}
		if err := s.repo.UpdateTx(tx, order, columns...); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, LifecycleEvent(enums.EventOrderConfirmed, order, previous, actor, now)); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, asDomainError(err, "confirm order")
	}
	return result, nil
}

func (s *Service) mutateDraft(ctx context.Context, businessID, orderID uuid.UUID, action string, fn func(tx *gorm.DB, order *models.Order) error) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lockOwned(tx, businessID, orderID)
		if err != nil {
			return err
		}
		if err := RequireStatus(order.Status, action, enums.OrderStatusDraft); err != nil {
			return err
		}
		if err := fn(tx, order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, asDomainError(err, action)
	}
	return result, nil
}

// mutatePricing is mutateDraft for changes that move the total. An unexpired
// payment link was priced at the current total, so those changes wait for it.
func (s *Service) mutatePricing(ctx context.Context, businessID, orderID uuid.UUID, action string, fn func(tx *gorm.DB, order *models.Order) error) (*models.Order, error) {
	return s.mutateDraft(ctx, businessID, orderID, action, func(tx *gorm.DB, order *models.Order) error {
		if order.HasActivePaymentLink(s.now()) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot %s while a payment link is open", action)).
				WithDetails(map[string]any{"payment_link_expires_at": order.PaymentLinkExpiresAt})
		}
		return fn(tx, order)
	})
}

func (s *Service) lockOwned(tx *gorm.DB, businessID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.LockTx(tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.BusinessID != businessID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *Service) snapshotLine(ctx context.Context, businessID uuid.UUID, in ItemInput) (*catalog.LineSnapshot, error) {
	if in.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if in.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	return s.catalog.Snapshot(ctx, businessID, in.ProductID, in.VariantID)
}

// addLine grows the matching line or appends a new one from snap.
func addLine(order *models.Order, in ItemInput, snap *catalog.LineSnapshot) error {
	for i := range order.Items {
		if sameLine(order.Items[i], in) {
			order.Items[i].Quantity += in.Quantity
			return nil
		}
	}
	if snap.Currency != "" && snap.Currency != order.Currency {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("%s is priced in %s but the order is in %s", snap.Name, snap.Currency, order.Currency))
	}
	order.Items = append(order.Items, models.OrderLineItem{
		ID:                uuid.New(),
		OrderID:           order.ID,
		ProductID:         snap.ProductID,
		VariantID:         snap.VariantID,
		Name:              snap.Name,
		VariantName:       snap.VariantName,
		SKU:               snap.SKU,
		ExternalVariantID: snap.ExternalVariantID,
		Quantity:          in.Quantity,
		UnitPriceCents:    snap.UnitPriceCents,
		Position:          nextPosition(order),
	})
	return nil
}

func (s *Service) warn(ctx context.Context, order *models.Order, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithBusinessID(ctx, order.BusinessID.String()), msg)
}

func applyDelivery(order *models.Order, deliveryType enums.DeliveryType, address *types.DeliveryAddress, feeCents *int64, business *models.Business) error {
	if !deliveryType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown delivery type %q", deliveryType))
	}
	switch deliveryType {
	case enums.DeliveryTypePickup:
		order.DeliveryType = deliveryType
		order.DeliveryAddress = nil
		order.DeliveryFeeCents = 0
	case enums.DeliveryTypeDelivery:
		if address == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "delivery address required for delivery orders")
		}
		if err := address.Validate(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
		}
		fee := business.DeliveryFeeCents
		if feeCents != nil {
			if *feeCents < 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "delivery fee cannot be negative")
			}
			fee = *feeCents
		}
		order.DeliveryType = deliveryType
		order.DeliveryAddress = address
		order.DeliveryFeeCents = fee
	}
	return nil
}

func validateDelivery(order *models.Order) error {
	if order.DeliveryType == enums.DeliveryTypeDelivery && order.DeliveryAddress == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery address required for delivery orders")
	}
	return nil
}

func sameLine(item models.OrderLineItem, in ItemInput) bool {
	if item.ProductID != in.ProductID {
		return false
	}
	switch {
	case item.VariantID == nil && (in.VariantID == nil || *in.VariantID == uuid.Nil):
		return true
	case item.VariantID != nil && in.VariantID != nil:
		return *item.VariantID == *in.VariantID
	}
	return false
}

func findItem(order *models.Order, itemID uuid.UUID) int {
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func nextPosition(order *models.Order) int {
	pos := 0
	for _, item := range order.Items {
		if item.Position >= pos {
			pos = item.Position + 1
		}
	}
	return pos
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// asDomainError keeps typed errors and wraps the rest as internal.
func asDomainError(err error, action string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action)
}
