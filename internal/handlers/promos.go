package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clovermart/storefront/internal/platform/httpx"
	"github.com/clovermart/storefront/internal/services"
)

const maxPromoRequestBody = 4 * 1024

// PromoHandlers exposes public promo code validation. Validation is
// read-only: usage is committed only during order finalization.
type PromoHandlers struct {
	promos services.PromoService
}

// NewPromoHandlers constructs the public promo handlers.
func NewPromoHandlers(promos services.PromoService) *PromoHandlers {
	return &PromoHandlers{promos: promos}
}

// Routes registers promo endpoints under the provided router.
func (h *PromoHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/promos/validate", h.validatePromo)
}

type promoValidateRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
}

type promoValidateResponse struct {
	Valid    bool   `json:"valid"`
	Code     string `json:"code,omitempty"`
	Type     string `json:"type,omitempty"`
	Discount int64  `json:"discount"`
	Total    int64  `json:"total"`
	Reason   string `json:"reason,omitempty"`
}

func (h *PromoHandlers) validatePromo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promos == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promo_unavailable", "promo service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxPromoRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req promoValidateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if req.Subtotal < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "subtotal must be non-negative", http.StatusBadRequest))
		return
	}

	quote, err := h.promos.Validate(ctx, strings.TrimSpace(req.Code), req.Subtotal)
	if err != nil {
		h.writePromoError(ctx, w, err, req.Subtotal)
		return
	}

	writeJSONResponse(w, http.StatusOK, promoValidateResponse{
		Valid:    true,
		Code:     quote.Code,
		Type:     string(quote.Type),
		Discount: quote.DiscountAmount,
		Total:    req.Subtotal - quote.DiscountAmount,
	})
}

func (h *PromoHandlers) writePromoError(ctx context.Context, w http.ResponseWriter, err error, subtotal int64) {
	switch {
	case errors.Is(err, services.ErrPromoInvalidCode):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPromoNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promo_not_found", "promo code not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromoRejected):
		reason, _ := services.RejectionReason(err)
		writeJSONResponse(w, http.StatusUnprocessableEntity, promoValidateResponse{
			Valid:  false,
			Reason: string(reason),
			Total:  subtotal,
		})
	case errors.Is(err, services.ErrPromoUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("promo_unavailable", "promo service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("promo_error", "failed to validate promo code", http.StatusInternalServerError))
	}
}
