package services

import (
	"context"

	domain "github.com/clovermart/storefront/internal/domain"
)

// Type aliases keep service signatures close to the domain package.
type (
	Order                = domain.Order
	OrderStatus          = domain.OrderStatus
	Product              = domain.Product
	PromoCode            = domain.PromoCode
	PromoQuote           = domain.PromoQuote
	PromoRejectionReason = domain.PromoRejectionReason
	StockAdjustment      = domain.StockAdjustment
)

// CounterService issues unique, strictly increasing order numbers.
type CounterService interface {
	// NextOrderNumber returns the next order number. Safe under unbounded
	// concurrent invocation: no two calls ever observe the same value.
	NextOrderNumber(ctx context.Context) (int64, error)
}

// PromoService validates promo codes and keeps the usage ledger.
type PromoService interface {
	// Validate is read-only: it checks the code against the subtotal and
	// computes the discount without consuming usage.
	Validate(ctx context.Context, code string, subtotal int64) (PromoQuote, error)
	// CommitUsage increments the code's usedCount exactly once, gated on the
	// usage limit in the same atomic step. Called only from order
	// finalization, never from the validation path.
	CommitUsage(ctx context.Context, code string) error
}

// InventoryService adjusts stock counters for finalized orders.
type InventoryService interface {
	// Adjust decrements quantity and increments sold per line. Called once
	// per finalization, inside the finalization transaction; a line that
	// would drive stock negative aborts the whole call.
	Adjust(ctx context.Context, lines []StockAdjustment) error
}

// FinalizeResult reports the outcome of a finalization attempt.
type FinalizeResult struct {
	OrderID        string
	OrderNumber    int64
	AlreadyApplied bool
}

// CreateOrderCommand captures the input for order creation at checkout.
// GatewayOrderID carries the payment gateway's order reference when checkout
// already opened one; left blank, online orders get a generated reference so
// gateway callbacks can always resolve the order.
type CreateOrderCommand struct {
	Customer       domain.Customer
	ShippingTo     domain.Address
	Lines          []domain.OrderLine
	Currency       string
	PromoCode      string
	PaymentMethod  domain.PaymentMethod
	GatewayOrderID string
	Metadata       map[string]string
}

// TransitionStatusCommand describes an admin-driven lifecycle transition.
type TransitionStatusCommand struct {
	OrderID        string
	Status         domain.OrderStatus
	ExpectedStatus domain.OrderStatus
	ActorID        string
}

// OrderListQuery narrows order listings for a customer.
type OrderListQuery struct {
	UserID    string
	Status    domain.OrderStatus
	PageSize  int
	PageToken string
}

// OrderService owns the order lifecycle, including the finalization edge.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, orderID string) (Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (Order, error)
	// Finalize performs the pending→processing transition: order number
	// allocation, promo usage commit, stock adjustment and status flip in
	// one atomic scope, at most once per order. Repeat calls return the
	// existing order number without side effects.
	Finalize(ctx context.Context, orderID string) (FinalizeResult, error)
	TransitionStatus(ctx context.Context, cmd TransitionStatusCommand) (Order, error)
	List(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error)
}

// ProductListQuery narrows catalog listings.
type ProductListQuery struct {
	Locale    string
	PageSize  int
	PageToken string
}

// ProductView is a public catalog projection: sanitized description and a
// locale-aware display price alongside the raw product fields.
type ProductView struct {
	Product
	DisplayPrice string
}

// CatalogService serves public, sanitized catalog reads.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string, locale string) (ProductView, error)
	ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[ProductView], error)
}

// SystemService aggregates dependency health for readiness probes.
type SystemService interface {
	Health(ctx context.Context) (domain.SystemHealthReport, error)
}
