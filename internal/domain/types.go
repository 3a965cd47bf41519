package domain

import "time"

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPending marks a provisional order awaiting payment confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing marks a confirmed order whose accounting side effects have been applied.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped marks an order handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered marks an order received by the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCompleted is the successful terminal state.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled is the abandoned terminal state.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRTO marks a shipment returned to origin; terminal, reachable only from shipped.
	OrderStatusRTO OrderStatus = "rto"
)

// PaymentStatus enumerates payment settlement states tracked on an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusCOD      PaymentStatus = "cod_due"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod identifies the gateway variant that confirmed (or will collect) payment.
type PaymentMethod string

const (
	PaymentMethodGateway  PaymentMethod = "gateway"
	PaymentMethodRedirect PaymentMethod = "redirect"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodCOD      PaymentMethod = "cod"
)

// Address captures the shipping destination persisted with the order.
type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// Customer identifies the buyer: a registered user reference or guest contact fields.
type Customer struct {
	UserID string
	Name   string
	Email  string
	Phone  string
}

// OrderLine is an immutable snapshot of one purchased product at order time.
type OrderLine struct {
	ProductID string
	SKU       string
	Name      string
	Quantity  int
	UnitPrice int64
	LineTotal int64
}

// OrderTotals carries the monetary summary in minor currency units.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Total    int64
	Currency string
}

// Order is a commercial transaction record.
//
// OrderNumber is zero until finalization assigns one; once set it never
// changes and is never reused.
type Order struct {
	ID             string
	OrderNumber    int64
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	PaymentMethod  PaymentMethod
	GatewayOrderID string
	PromoCode      string
	Customer       Customer
	ShippingTo     Address
	Lines          []OrderLine
	Totals         OrderTotals
	Metadata       map[string]string
	CreatedAt      time.Time
	FinalizedAt    *time.Time
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	UpdatedAt      time.Time
}

// Finalized reports whether the order has progressed past the provisional state.
func (o Order) Finalized() bool {
	return o.Status != "" && o.Status != OrderStatusPending
}

// Product carries catalog and inventory fields. Quantity is stock on hand,
// Sold the cumulative units sold; the two move by the same delta in the same
// transaction during finalization.
type Product struct {
	ID          string
	SKU         string
	Name        string
	Description string
	Price       int64
	Currency    string
	Quantity    int64
	Sold        int64
	Active      bool
	UpdatedAt   time.Time
}

// PromoType distinguishes discount computation rules.
type PromoType string

const (
	PromoTypePercentage PromoType = "percentage"
	PromoTypeFixed      PromoType = "fixed"
)

// PromoCode is a discount rule. UsageLimit of zero means unlimited;
// UsedCount is mutated only by the ledger during finalization.
type PromoCode struct {
	Code          string
	Type          PromoType
	Value         int64
	MinOrderValue int64
	MaxDiscount   int64
	UsageLimit    int64
	UsedCount     int64
	Active        bool
	ExpiresAt     *time.Time
	UpdatedAt     time.Time
}

// PromoQuote is the result of validating a code against an order subtotal.
type PromoQuote struct {
	Code           string
	Type           PromoType
	DiscountAmount int64
}

// PromoRejectionReason enumerates why a promo code failed validation.
type PromoRejectionReason string

const (
	PromoReasonNotFound       PromoRejectionReason = "not_found"
	PromoReasonInactive       PromoRejectionReason = "inactive"
	PromoReasonExpired        PromoRejectionReason = "expired"
	PromoReasonBelowMinimum   PromoRejectionReason = "below_minimum"
	PromoReasonUsageExhausted PromoRejectionReason = "usage_exhausted"
)

// StockAdjustment describes one line of an inventory mutation.
type StockAdjustment struct {
	ProductID string
	Quantity  int
}

// OrderEvent is emitted after a successful finalization for downstream
// collaborators (notification, shipment creation).
type OrderEvent struct {
	Type        string
	OrderID     string
	OrderNumber int64
	Status      OrderStatus
	PromoCode   string
	Lines       []OrderLine
	Totals      OrderTotals
	ShippingTo  Address
	OccurredAt  time.Time
}

// CursorPage wraps a result slice with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
