package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clovermart/storefront/internal/payments"
	"github.com/clovermart/storefront/internal/platform/httpx"
	"github.com/clovermart/storefront/internal/services"
)

const maxWebhookBody = 256 * 1024

// Signature transport headers accepted on payment callbacks.
const (
	headerGatewaySignature = "X-Signature"
	headerStripeSignature  = "Stripe-Signature"
)

// WebhookHandlers receives payment confirmation callbacks and routes them to
// the matching gateway adapter. This is the only surface that triggers order
// finalization for online payment methods.
type WebhookHandlers struct {
	manager *payments.Manager
}

// NewWebhookHandlers constructs the payment webhook handlers.
func NewWebhookHandlers(manager *payments.Manager) *WebhookHandlers {
	return &WebhookHandlers{manager: manager}
}

// Routes registers webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/{provider}", h.confirmPayment)
}

type paymentCallbackRequest struct {
	OrderID        string            `json:"orderId"`
	GatewayOrderID string            `json:"gatewayOrderId"`
	PaymentID      string            `json:"paymentId"`
	Signature      string            `json:"signature"`
	Status         string            `json:"status"`
	Fields         map[string]string `json:"fields"`
}

type paymentCallbackResponse struct {
	Status      string `json:"status"`
	OrderID     string `json:"orderId,omitempty"`
	OrderNumber int64  `json:"orderNumber,omitempty"`
}

func (h *WebhookHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.manager == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment providers unavailable", http.StatusServiceUnavailable))
		return
	}

	providerName := strings.TrimSpace(chi.URLParam(r, "provider"))
	provider, err := h.manager.Resolve(providerName)
	if err != nil {
		if errors.Is(err, payments.ErrProviderNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("provider_not_found", "unknown payment provider", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment providers unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	callback, err := buildCallback(r, body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := provider.Confirm(ctx, callback)
	if err != nil {
		h.writeConfirmError(ctx, w, err)
		return
	}

	status := "finalized"
	switch {
	case result.Ignored:
		status = "ignored"
	case result.AlreadyFinalized:
		status = "already_finalized"
	}
	writeJSONResponse(w, http.StatusOK, paymentCallbackResponse{
		Status:      status,
		OrderID:     result.OrderID,
		OrderNumber: result.OrderNumber,
	})
}

// buildCallback normalises the transport envelope: JSON bodies carry named
// fields, form bodies carry gateway key-value pairs, and signatures may ride
// on headers instead of the payload.
func buildCallback(r *http.Request, body []byte) (payments.Callback, error) {
	callback := payments.Callback{
		RawBody:       body,
		Signature:     strings.TrimSpace(r.Header.Get(headerGatewaySignature)),
		SignatureHead: strings.TrimSpace(r.Header.Get(headerStripeSignature)),
	}

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch contentType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return payments.Callback{}, errors.New("request body must be form encoded")
		}
		fields := make(map[string]string, len(values))
		for key := range values {
			fields[key] = values.Get(key)
		}
		callback.Fields = fields
		callback.OrderID = fields["orderId"]
		callback.GatewayOrderID = fields["gatewayOrderId"]
		callback.PaymentID = fields["paymentId"]
		callback.Status = fields["status"]
		if callback.Signature == "" {
			callback.Signature = fields["signature"]
		}
	default:
		var req paymentCallbackRequest
		if err := json.Unmarshal(body, &req); err != nil {
			// Providers that verify the raw payload themselves accept
			// opaque bodies.
			return callback, nil
		}
		callback.OrderID = strings.TrimSpace(req.OrderID)
		callback.GatewayOrderID = strings.TrimSpace(req.GatewayOrderID)
		callback.PaymentID = strings.TrimSpace(req.PaymentID)
		callback.Status = strings.TrimSpace(req.Status)
		callback.Fields = req.Fields
		if callback.Signature == "" {
			callback.Signature = strings.TrimSpace(req.Signature)
		}
	}
	return callback, nil
}

func (h *WebhookHandlers) writeConfirmError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payments.ErrInvalidCallback):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_callback", err.Error(), http.StatusBadRequest))
	case errors.Is(err, payments.ErrSignatureMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("signature_mismatch", "callback signature verification failed", http.StatusUnauthorized))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "insufficient stock to finalize the order", http.StatusConflict))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "order references an unknown product", http.StatusConflict))
	case errors.Is(err, services.ErrPromoRejected), errors.Is(err, services.ErrPromoNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promo_rejected", "promo code can no longer be applied", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrAllocationUnavailable):
		// Transient: the gateway retries and the next attempt allocates.
		httpx.WriteError(ctx, w, httpx.NewError("allocation_unavailable", "order number allocation unavailable; retry", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_finalizable", "order can no longer be finalized", http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order changed concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_confirmation_error", "failed to process payment confirmation", http.StatusInternalServerError))
	}
}
