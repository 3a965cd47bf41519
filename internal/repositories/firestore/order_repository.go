package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/clovermart/storefront/internal/domain"
	pfirestore "github.com/clovermart/storefront/internal/platform/firestore"
	"github.com/clovermart/storefront/internal/platform/pagination"
	"github.com/clovermart/storefront/internal/repositories"
)

const (
	ordersCollection     = "orders"
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

type orderLineDocument struct {
	ProductID string `firestore:"productId"`
	SKU       string `firestore:"sku"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	LineTotal int64  `firestore:"lineTotal"`
}

type orderCustomerDocument struct {
	UserID string `firestore:"userId,omitempty"`
	Name   string `firestore:"name,omitempty"`
	Email  string `firestore:"email,omitempty"`
	Phone  string `firestore:"phone,omitempty"`
}

type orderAddressDocument struct {
	Name       string `firestore:"name,omitempty"`
	Line1      string `firestore:"line1,omitempty"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city,omitempty"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country,omitempty"`
	Phone      string `firestore:"phone,omitempty"`
}

type orderTotalsDocument struct {
	Subtotal int64  `firestore:"subtotal"`
	Discount int64  `firestore:"discount"`
	Total    int64  `firestore:"total"`
	Currency string `firestore:"currency,omitempty"`
}

type orderDocument struct {
	OrderNumber    int64                 `firestore:"orderNumber"`
	Status         string                `firestore:"status"`
	PaymentStatus  string                `firestore:"paymentStatus"`
	PaymentMethod  string                `firestore:"paymentMethod"`
	GatewayOrderID string                `firestore:"gatewayOrderId,omitempty"`
	PromoCode      string                `firestore:"promoCode,omitempty"`
	Customer       orderCustomerDocument `firestore:"customer"`
	ShippingTo     orderAddressDocument  `firestore:"shippingTo"`
	Lines          []orderLineDocument   `firestore:"lines"`
	Totals         orderTotalsDocument   `firestore:"totals"`
	Metadata       map[string]string     `firestore:"metadata,omitempty"`
	CreatedAt      time.Time             `firestore:"createdAt"`
	FinalizedAt    *time.Time            `firestore:"finalizedAt,omitempty"`
	ShippedAt      *time.Time            `firestore:"shippedAt,omitempty"`
	DeliveredAt    *time.Time            `firestore:"deliveredAt,omitempty"`
	UpdatedAt      time.Time             `firestore:"updatedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:    order.OrderNumber,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		PaymentMethod:  string(order.PaymentMethod),
		GatewayOrderID: order.GatewayOrderID,
		PromoCode:      order.PromoCode,
		Customer: orderCustomerDocument{
			UserID: order.Customer.UserID,
			Name:   order.Customer.Name,
			Email:  order.Customer.Email,
			Phone:  order.Customer.Phone,
		},
		ShippingTo: orderAddressDocument{
			Name:       order.ShippingTo.Name,
			Line1:      order.ShippingTo.Line1,
			Line2:      order.ShippingTo.Line2,
			City:       order.ShippingTo.City,
			State:      order.ShippingTo.State,
			PostalCode: order.ShippingTo.PostalCode,
			Country:    order.ShippingTo.Country,
			Phone:      order.ShippingTo.Phone,
		},
		Totals: orderTotalsDocument{
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Total:    order.Totals.Total,
			Currency: order.Totals.Currency,
		},
		Metadata:    order.Metadata,
		CreatedAt:   order.CreatedAt.UTC(),
		FinalizedAt: order.FinalizedAt,
		ShippedAt:   order.ShippedAt,
		DeliveredAt: order.DeliveredAt,
		UpdatedAt:   order.UpdatedAt.UTC(),
	}
	doc.Lines = make([]orderLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		doc.Lines = append(doc.Lines, orderLineDocument{
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:             id,
		OrderNumber:    d.OrderNumber,
		Status:         domain.OrderStatus(d.Status),
		PaymentStatus:  domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod:  domain.PaymentMethod(d.PaymentMethod),
		GatewayOrderID: d.GatewayOrderID,
		PromoCode:      d.PromoCode,
		Customer: domain.Customer{
			UserID: d.Customer.UserID,
			Name:   d.Customer.Name,
			Email:  d.Customer.Email,
			Phone:  d.Customer.Phone,
		},
		ShippingTo: domain.Address{
			Name:       d.ShippingTo.Name,
			Line1:      d.ShippingTo.Line1,
			Line2:      d.ShippingTo.Line2,
			City:       d.ShippingTo.City,
			State:      d.ShippingTo.State,
			PostalCode: d.ShippingTo.PostalCode,
			Country:    d.ShippingTo.Country,
			Phone:      d.ShippingTo.Phone,
		},
		Totals: domain.OrderTotals{
			Subtotal: d.Totals.Subtotal,
			Discount: d.Totals.Discount,
			Total:    d.Totals.Total,
			Currency: d.Totals.Currency,
		},
		Metadata:    d.Metadata,
		CreatedAt:   d.CreatedAt,
		FinalizedAt: d.FinalizedAt,
		ShippedAt:   d.ShippedAt,
		DeliveredAt: d.DeliveredAt,
		UpdatedAt:   d.UpdatedAt,
	}
	order.Lines = make([]domain.OrderLine, 0, len(d.Lines))
	for _, line := range d.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	return order
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: base}, nil
}

// Insert persists a new order document. The document must not already exist.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.Order{}, errors.New("order insert: id is required")
	}

	ref, err := r.orders.DocumentRef(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	doc := newOrderDocument(order)
	if _, err := ref.Create(ctx, doc); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.insert", err)
	}
	return doc.toDomain(id), nil
}

// FindByID loads an order. Joins an ambient transaction when present.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		ref, err := r.orders.DocumentRef(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.Order{}, pfirestore.WrapError("orders.get", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Order{}, fmt.Errorf("decode order %s: %w", id, err)
		}
		return doc.toDomain(id), nil
	}

	doc, err := r.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByGatewayOrderID resolves the order created for a gateway-side order id.
func (r *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	gatewayID := strings.TrimSpace(gatewayOrderID)
	if gatewayID == "" {
		return domain.Order{}, errors.New("gateway order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	iter := client.Collection(ordersCollection).
		Where("gatewayOrderId", "==", gatewayID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, pfirestore.WrapError("orders.byGateway", status.Error(codes.NotFound, fmt.Sprintf("order for gateway id %s not found", gatewayID)))
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.byGateway", err)
	}

	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ApplyFinalization writes the finalization field set. Inside an ambient
// transaction the caller has already read and guarded the order, so the
// update is staged without a further read; standalone it re-reads the order
// and refuses to overwrite a finalized one.
func (r *OrderRepository) ApplyFinalization(ctx context.Context, orderID string, update repositories.OrderFinalizationUpdate) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return errors.New("order id is required")
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		ref, err := r.orders.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		return stageOrApply(ctx, tx, func(tx *firestore.Transaction) error {
			return tx.Update(ref, finalizationUpdates(update))
		})
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}
		if domain.OrderStatus(doc.Status) != domain.OrderStatusPending {
			return pfirestore.WrapError("orders.finalize", status.Error(codes.FailedPrecondition, fmt.Sprintf("order %s is not pending", id)))
		}
		return tx.Update(ref, finalizationUpdates(update))
	})
	if err != nil {
		return pfirestore.WrapError("orders.finalize", err)
	}
	return nil
}

func finalizationUpdates(update repositories.OrderFinalizationUpdate) []firestore.Update {
	at := update.FinalizedAt.UTC()
	return []firestore.Update{
		{Path: "orderNumber", Value: update.OrderNumber},
		{Path: "status", Value: string(update.Status)},
		{Path: "paymentStatus", Value: string(update.PaymentStatus)},
		{Path: "totals.discount", Value: update.Discount},
		{Path: "totals.total", Value: update.Total},
		{Path: "finalizedAt", Value: at},
		{Path: "updatedAt", Value: at},
	}
}

// UpdateStatus applies an admin-driven lifecycle transition, guarded by the
// expected current status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}
		if update.ExpectedStatus != "" && domain.OrderStatus(doc.Status) != update.ExpectedStatus {
			return pfirestore.WrapError("orders.status", status.Error(codes.FailedPrecondition, fmt.Sprintf("order %s status is %s", id, doc.Status)))
		}

		occurred := update.Occurred.UTC()
		doc.Status = string(update.Status)
		doc.UpdatedAt = occurred
		switch update.Status {
		case domain.OrderStatusShipped:
			doc.ShippedAt = &occurred
		case domain.OrderStatusDelivered:
			doc.DeliveredAt = &occurred
		}

		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.status", err)
	}
	return updated, nil
}

// ListByUser returns a page of the user's orders ordered by document ID.
func (r *OrderRepository) ListByUser(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	userID := strings.TrimSpace(filter.UserID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("user id is required")
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	query := client.Collection(ordersCollection).
		Where("customer.userId", "==", userID).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)
	if filter.Status != "" {
		query = query.Where("status", "==", string(filter.Status))
	}
	if token := strings.TrimSpace(filter.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var items []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}

	page := domain.CursorPage[domain.Order]{Items: items}
	if len(items) > pageSize {
		page.Items = items[:pageSize]
		token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{page.Items[pageSize-1].ID}})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}
