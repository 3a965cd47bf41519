package repositories

import (
	"context"
	"time"

	domain "github.com/clovermart/storefront/internal/domain"
)

// Registry aggregates the repository implementations wired at startup.
// Nil fields disable the dependent services.
type Registry struct {
	Orders   OrderRepository
	Products ProductRepository
	Promos   PromoCodeRepository
	Counters CounterRepository
	Health   HealthRepository

	UnitOfWork
}

// RepositoryError is implemented by persistence errors so services can map
// them onto their own sentinel errors without importing driver packages.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations into one transactional boundary.
// Implementations propagate the transaction through the derived context, so
// repository methods invoked with that context join the same atomic scope.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CounterRepository issues monotonically increasing sequence values.
type CounterRepository interface {
	// Next atomically increments the named counter and returns the new value.
	// Two concurrent calls never observe the same value; an aborted
	// transaction consumes nothing.
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// OrderFinalizationUpdate captures the field set written by the finalization edge.
type OrderFinalizationUpdate struct {
	OrderNumber   int64
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	Discount      int64
	Total         int64
	FinalizedAt   time.Time
}

// OrderStatusUpdate describes an admin-driven lifecycle transition.
type OrderStatusUpdate struct {
	Status         domain.OrderStatus
	ExpectedStatus domain.OrderStatus
	Occurred       time.Time
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID    string
	Status    domain.OrderStatus
	PageSize  int
	PageToken string
}

// OrderRepository persists orders and their line-item snapshots.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error)
	// ApplyFinalization writes order number, status, payment status and
	// discount bookkeeping in one mutation. Joins an ambient transaction
	// when one is present on the context.
	ApplyFinalization(ctx context.Context, orderID string, update OrderFinalizationUpdate) error
	UpdateStatus(ctx context.Context, orderID string, update OrderStatusUpdate) (domain.Order, error)
	ListByUser(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	ActiveOnly bool
	PageSize   int
	PageToken  string
}

// ProductRepository persists catalog and stock state.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	// AdjustStock decrements quantity and increments sold per line. A line
	// that would drive quantity negative fails the whole call with a
	// StockError carrying StockErrorInsufficient. Joins an ambient
	// transaction when one is present on the context.
	AdjustStock(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error
}

// PromoCodeRepository persists discount rules and their usage ledger.
type PromoCodeRepository interface {
	FindByCode(ctx context.Context, code string) (domain.PromoCode, error)
	// IncrementUsage adds one to usedCount, gated on usedCount < usageLimit
	// inside the same atomic step. Exhausted codes fail with a PromoError
	// carrying PromoErrorUsageExhausted and are never incremented. Joins an
	// ambient transaction when one is present on the context.
	IncrementUsage(ctx context.Context, code string, now time.Time) error
}

// HealthRepository evaluates dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
