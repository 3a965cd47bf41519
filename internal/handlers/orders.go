package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovermart/storefront/internal/domain"
	"github.com/clovermart/storefront/internal/platform/auth"
	"github.com/clovermart/storefront/internal/platform/httpx"
	"github.com/clovermart/storefront/internal/platform/pagination"
	"github.com/clovermart/storefront/internal/platform/storage"
	"github.com/clovermart/storefront/internal/services"
)

const (
	maxOrderRequestBody = 32 * 1024

	defaultListPageSize = 20
	maxListPageSize     = 100
)

// ReceiptLinkProvider signs download links for archived order snapshots.
type ReceiptLinkProvider interface {
	ReceiptDownloadURL(ctx context.Context, order domain.Order, identity *auth.Identity) (storage.SignedURLResult, error)
}

// OrderHandlers exposes user-scoped order endpoints: checkout placement and
// order history reads. Finalization is never reachable from here; it belongs
// to the payment confirmation surface.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	receipts ReceiptLinkProvider
}

// NewOrderHandlers constructs order handlers guarded by Firebase authentication.
// The receipt provider is optional; without it the receipt endpoint reports
// the feature as unavailable.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, receipts ReceiptLinkProvider) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders, receipts: receipts}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/orders", h.createOrder)
	group.Get("/orders", h.listOrders)
	group.Get("/orders/{orderId}", h.getOrder)
	group.Get("/orders/{orderId}/receipt", h.getReceipt)
}

type orderLineRequest struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type addressRequest struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type createOrderRequest struct {
	Lines          []orderLineRequest `json:"lines"`
	ShippingTo     addressRequest     `json:"shippingTo"`
	Currency       string             `json:"currency"`
	PromoCode      string             `json:"promoCode,omitempty"`
	PaymentMethod  string             `json:"paymentMethod"`
	GatewayOrderID string             `json:"gatewayOrderId,omitempty"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
}

type orderLineResponse struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku,omitempty"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
}

type orderTotalsResponse struct {
	Subtotal int64  `json:"subtotal"`
	Discount int64  `json:"discount"`
	Total    int64  `json:"total"`
	Currency string `json:"currency,omitempty"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	OrderNumber    int64               `json:"orderNumber,omitempty"`
	Status         string              `json:"status"`
	PaymentStatus  string              `json:"paymentStatus"`
	PaymentMethod  string              `json:"paymentMethod"`
	GatewayOrderID string              `json:"gatewayOrderId,omitempty"`
	PromoCode      string              `json:"promoCode,omitempty"`
	Lines          []orderLineResponse `json:"lines"`
	Totals         orderTotalsResponse `json:"totals"`
	CreatedAt      string              `json:"createdAt,omitempty"`
	FinalizedAt    string              `json:"finalizedAt,omitempty"`
	UpdatedAt      string              `json:"updatedAt,omitempty"`
}

type orderListResponse struct {
	Items         []orderResponse `json:"items"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	lines := make([]domain.OrderLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID: strings.TrimSpace(line.ProductID),
			SKU:       strings.TrimSpace(line.SKU),
			Name:      strings.TrimSpace(line.Name),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	cmd := services.CreateOrderCommand{
		Customer: domain.Customer{
			UserID: identity.UID,
			Email:  identity.Email,
		},
		ShippingTo: domain.Address{
			Name:       strings.TrimSpace(req.ShippingTo.Name),
			Line1:      strings.TrimSpace(req.ShippingTo.Line1),
			Line2:      strings.TrimSpace(req.ShippingTo.Line2),
			City:       strings.TrimSpace(req.ShippingTo.City),
			State:      strings.TrimSpace(req.ShippingTo.State),
			PostalCode: strings.TrimSpace(req.ShippingTo.PostalCode),
			Country:    strings.TrimSpace(req.ShippingTo.Country),
			Phone:      strings.TrimSpace(req.ShippingTo.Phone),
		},
		Lines:          lines,
		Currency:       strings.TrimSpace(req.Currency),
		PromoCode:      strings.TrimSpace(req.PromoCode),
		PaymentMethod:  domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		GatewayOrderID: strings.TrimSpace(req.GatewayOrderID),
		Metadata:       req.Metadata,
	}

	order, err := h.orders.Create(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize:     defaultListPageSize,
		MaxPageSize:         maxListPageSize,
		AllowedFilterFields: map[string][]pagination.Operator{"status": {pagination.OperatorEqual}},
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.OrderListQuery{
		UserID:    identity.UID,
		Status:    domain.OrderStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))),
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}
	// `filter=status==pending` is the generic spelling of the status parameter
	// and wins when both are present.
	for _, filter := range params.Filters {
		if filter.Field == "status" {
			query.Status = domain.OrderStatus(strings.ToLower(filter.Value))
		}
	}

	page, err := h.orders.List(ctx, query)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := orderListResponse{
		Items:         make([]orderResponse, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		payload.Items = append(payload.Items, toOrderResponse(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	// Order documents are user-scoped; a foreign order is indistinguishable
	// from a missing one.
	if order.Customer.UserID != identity.UID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

type receiptResponse struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	ExpiresAt string `json:"expiresAt"`
}

func (h *OrderHandlers) getReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.receipts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("receipts_unavailable", "receipt downloads are not enabled", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	if order.Customer.UserID != identity.UID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	if !order.Finalized() {
		httpx.WriteError(ctx, w, httpx.NewError("receipt_not_ready", "order has not been finalized yet", http.StatusConflict))
		return
	}

	link, err := h.receipts.ReceiptDownloadURL(ctx, order, identity)
	if err != nil {
		if errors.Is(err, storage.ErrPermissionDenied) {
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("receipt_error", "failed to issue receipt link", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, receiptResponse{
		URL:       link.URL,
		Method:    link.Method,
		ExpiresAt: formatTime(link.ExpiresAt),
	})
}

func toOrderResponse(order domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineResponse{
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}

	return orderResponse{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		PaymentMethod:  string(order.PaymentMethod),
		GatewayOrderID: order.GatewayOrderID,
		PromoCode:      order.PromoCode,
		Lines:          lines,
		Totals: orderTotalsResponse{
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Total:    order.Totals.Total,
			Currency: order.Totals.Currency,
		},
		CreatedAt:   formatTime(order.CreatedAt),
		FinalizedAt: formatTimePtr(order.FinalizedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
	}
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromoNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promo_not_found", "promo code not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromoRejected):
		reason, _ := services.RejectionReason(err)
		httpx.WriteError(ctx, w, httpx.NewError("promo_rejected", string(reason), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "insufficient stock to place the order", http.StatusConflict))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "order references an unknown product", http.StatusConflict))
	case errors.Is(err, services.ErrAllocationUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("allocation_unavailable", "order number allocation unavailable; retry", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order changed concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
