package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clovermart/storefront/internal/domain"
	"github.com/clovermart/storefront/internal/platform/textutil"
	"github.com/clovermart/storefront/internal/repositories"
)

const (
	orderEventFinalized     = "order.finalized"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix        = "ord_"
	gatewayOrderIDPrefix = "gw_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a concurrent writer won the transition.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order backend could not be reached.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCompleted, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusRTO},
	domain.OrderStatusDelivered:  {domain.OrderStatusCompleted},
}

// OrderEventPublisher publishes order domain events for downstream consumers
// (notification, shipment creation).
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}

// OrderArchiver stores a snapshot of a finalized order for receipts and audits.
type OrderArchiver interface {
	ArchiveFinalizedOrder(ctx context.Context, order domain.Order) error
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Counters    CounterService
	Promos      PromoService
	Inventory   InventoryService
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Archiver    OrderArchiver
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	counters   CounterService
	promos     PromoService
	inventory  InventoryService
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	archiver   OrderArchiver
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return orderIDPrefix + ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		counters:   deps.Counters,
		promos:     deps.Promos,
		inventory:  deps.Inventory,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		events:   deps.Events,
		archiver: deps.Archiver,
		logger:   logger,
	}, nil
}

// Create persists a provisional order from the checkout submission. Line
// prices are immutable snapshots; the promo code is validated here for early
// feedback but usage is not consumed until finalization. Online orders carry
// a gateway order id (caller-supplied or generated) so payment callbacks can
// resolve them; cash-on-delivery has no callback and finalizes right here.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	lines, subtotal, err := normalizeOrderLines(cmd.Lines)
	if err != nil {
		return Order{}, err
	}
	if cmd.PaymentMethod == "" {
		return Order{}, fmt.Errorf("%w: payment method is required", ErrOrderInvalidInput)
	}

	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	if gatewayOrderID == "" && cmd.PaymentMethod != domain.PaymentMethodCOD {
		gatewayOrderID = gatewayOrderIDPrefix + ulid.Make().String()
	}

	promoCode := strings.ToUpper(strings.TrimSpace(cmd.PromoCode))
	if promoCode != "" {
		if s.promos == nil {
			return Order{}, fmt.Errorf("%w: promo codes are not enabled", ErrOrderInvalidInput)
		}
		if _, err := s.promos.Validate(ctx, promoCode, subtotal); err != nil {
			return Order{}, err
		}
	}

	now := s.clock()
	order := domain.Order{
		ID:             s.newID(),
		GatewayOrderID: gatewayOrderID,
		Status:         domain.OrderStatusPending,
		PaymentStatus:  domain.PaymentStatusPending,
		PaymentMethod:  cmd.PaymentMethod,
		PromoCode:      promoCode,
		Customer:       cmd.Customer,
		ShippingTo:     cmd.ShippingTo,
		Lines:          lines,
		Totals: domain.OrderTotals{
			Subtotal: subtotal,
			Total:    subtotal,
			Currency: strings.TrimSpace(cmd.Currency),
		},
		Metadata:  textutil.NormalizeStringMap(cmd.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.orders.Insert(ctx, order)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	// No gateway will ever confirm a cash-on-delivery order, so the amount is
	// collected on delivery and the order finalizes as part of placement.
	if created.PaymentMethod == domain.PaymentMethodCOD {
		if _, err := s.Finalize(ctx, created.ID); err != nil {
			return Order{}, err
		}
		finalized, err := s.orders.FindByID(ctx, created.ID)
		if err != nil {
			return Order{}, s.mapRepositoryError(err)
		}
		return finalized, nil
	}
	return created, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (Order, error) {
	id := strings.TrimSpace(gatewayOrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: gateway order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByGatewayOrderID(ctx, id)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// Finalize performs the pending→processing transition. Number allocation,
// promo usage commit, stock adjustment and the status flip share one
// transactional scope: a stock failure rolls back the promo increment and no
// number survives an aborted attempt. Repeat calls observe a finalized order
// and return the existing order number without side effects; a cancelled
// order that never finalized is rejected instead.
func (s *orderService) Finalize(ctx context.Context, orderID string) (FinalizeResult, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return FinalizeResult{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	// Cheap idempotency guard before opening the transaction. The status is
	// re-checked inside the transaction; this only short-circuits the common
	// duplicate-webhook case.
	existing, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return FinalizeResult{}, s.mapRepositoryError(err)
	}
	if err := finalizableState(existing); err != nil {
		return FinalizeResult{}, err
	}
	if existing.Finalized() {
		return FinalizeResult{OrderID: id, OrderNumber: existing.OrderNumber, AlreadyApplied: true}, nil
	}

	var result FinalizeResult
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if err := finalizableState(order); err != nil {
			return err
		}
		if order.Finalized() {
			result = FinalizeResult{OrderID: id, OrderNumber: order.OrderNumber, AlreadyApplied: true}
			return nil
		}

		number := order.OrderNumber
		if number == 0 {
			number, err = s.counters.NextOrderNumber(txCtx)
			if err != nil {
				return err
			}
		}

		var discount int64
		if order.PromoCode != "" && s.promos != nil {
			quote, err := s.promos.Validate(txCtx, order.PromoCode, order.Totals.Subtotal)
			if err != nil {
				return err
			}
			discount = quote.DiscountAmount
			if err := s.promos.CommitUsage(txCtx, order.PromoCode); err != nil {
				return err
			}
		}

		adjustments := make([]domain.StockAdjustment, 0, len(order.Lines))
		for _, line := range order.Lines {
			adjustments = append(adjustments, domain.StockAdjustment{ProductID: line.ProductID, Quantity: line.Quantity})
		}
		if err := s.inventory.Adjust(txCtx, adjustments); err != nil {
			return err
		}

		update := repositories.OrderFinalizationUpdate{
			OrderNumber:   number,
			Status:        domain.OrderStatusProcessing,
			PaymentStatus: settledPaymentStatus(order.PaymentMethod),
			Discount:      discount,
			Total:         order.Totals.Subtotal - discount,
			FinalizedAt:   s.clock(),
		}
		if err := s.orders.ApplyFinalization(txCtx, id, update); err != nil {
			return err
		}

		result = FinalizeResult{OrderID: id, OrderNumber: number}
		return nil
	})
	if err != nil {
		return FinalizeResult{}, s.mapFinalizeError(err)
	}

	if !result.AlreadyApplied {
		s.afterFinalize(ctx, result)
	}
	return result, nil
}

// afterFinalize notifies downstream collaborators. Both calls are best-effort:
// the transaction has committed and a retry of the caller would be a no-op, so
// failures are logged rather than surfaced.
func (s *orderService) afterFinalize(ctx context.Context, result FinalizeResult) {
	order, err := s.orders.FindByID(ctx, result.OrderID)
	if err != nil {
		s.logger(ctx, "order.finalized.reload_failed", map[string]any{
			"orderId": result.OrderID,
			"error":   err.Error(),
		})
		return
	}

	if s.events != nil {
		event := domain.OrderEvent{
			Type:        orderEventFinalized,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Status:      order.Status,
			PromoCode:   order.PromoCode,
			Lines:       order.Lines,
			Totals:      order.Totals,
			ShippingTo:  order.ShippingTo,
			OccurredAt:  s.clock(),
		}
		if err := s.events.PublishOrderEvent(ctx, event); err != nil {
			s.logger(ctx, "order.finalized.publish_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}

	if s.archiver != nil {
		if err := s.archiver.ArchiveFinalizedOrder(ctx, order); err != nil {
			s.logger(ctx, "order.finalized.archive_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}
}

// TransitionStatus applies an admin-driven lifecycle transition. Finalization
// is excluded: the pending→processing edge belongs to Finalize alone.
func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionStatusCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Status == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}
	if cmd.Status == domain.OrderStatusProcessing {
		return Order{}, fmt.Errorf("%w: processing is reached through finalization", ErrOrderInvalidState)
	}

	current, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !canTransition(current.Status, cmd.Status) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, current.Status, cmd.Status)
	}

	expected := cmd.ExpectedStatus
	if expected == "" {
		expected = current.Status
	}

	updated, err := s.orders.UpdateStatus(ctx, id, repositories.OrderStatusUpdate{
		Status:         cmd.Status,
		ExpectedStatus: expected,
		Occurred:       s.clock(),
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if s.events != nil {
		event := domain.OrderEvent{
			Type:        orderEventStatusChanged,
			OrderID:     updated.ID,
			OrderNumber: updated.OrderNumber,
			Status:      updated.Status,
			Totals:      updated.Totals,
			OccurredAt:  s.clock(),
		}
		if err := s.events.PublishOrderEvent(ctx, event); err != nil {
			s.logger(ctx, "order.status.publish_failed", map[string]any{
				"orderId": updated.ID,
				"error":   err.Error(),
			})
		}
	}
	return updated, nil
}

func (s *orderService) List(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error) {
	userID := strings.TrimSpace(query.UserID)
	if userID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	page, err := s.orders.ListByUser(ctx, repositories.OrderListFilter{
		UserID:    userID,
		Status:    query.Status,
		PageSize:  query.PageSize,
		PageToken: query.PageToken,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) mapFinalizeError(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrPromoRejected),
		errors.Is(err, ErrPromoNotFound),
		errors.Is(err, ErrAllocationUnavailable),
		errors.Is(err, ErrOrderInvalidState):
		return err
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

// finalizableState rejects orders whose lifecycle has moved past the point
// where a payment confirmation makes sense. A cancelled order that never
// allocated a number must not finalize; a cancelled order that did carries
// the marks of a past finalization and falls through to the idempotent path.
func finalizableState(order domain.Order) error {
	if order.Status == domain.OrderStatusCancelled && order.OrderNumber == 0 {
		return fmt.Errorf("%w: order %s is cancelled", ErrOrderInvalidState, order.ID)
	}
	return nil
}

func canTransition(from, to domain.OrderStatus) bool {
	for _, allowed := range orderStateTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func settledPaymentStatus(method domain.PaymentMethod) domain.PaymentStatus {
	if method == domain.PaymentMethodCOD {
		return domain.PaymentStatusCOD
	}
	return domain.PaymentStatusPaid
}

func normalizeOrderLines(lines []domain.OrderLine) ([]domain.OrderLine, int64, error) {
	if len(lines) == 0 {
		return nil, 0, fmt.Errorf("%w: at least one line is required", ErrOrderInvalidInput)
	}

	normalized := make([]domain.OrderLine, 0, len(lines))
	var subtotal int64
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, 0, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, 0, fmt.Errorf("%w: quantity for %s must be positive", ErrOrderInvalidInput, productID)
		}
		if line.UnitPrice < 0 {
			return nil, 0, fmt.Errorf("%w: unit price for %s must not be negative", ErrOrderInvalidInput, productID)
		}
		line.ProductID = productID
		line.LineTotal = line.UnitPrice * int64(line.Quantity)
		subtotal += line.LineTotal
		normalized = append(normalized, line)
	}
	return normalized, subtotal, nil
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
