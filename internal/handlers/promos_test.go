package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovermart/storefront/internal/domain"
	"github.com/clovermart/storefront/internal/services"
)

func TestPromoHandlersValidateSuccess(t *testing.T) {
	router := chi.NewRouter()
	service := &stubPromoService{
		validateFunc: func(ctx context.Context, code string, subtotal int64) (services.PromoQuote, error) {
			if code != "SAVE5" {
				t.Fatalf("expected code SAVE5, got %s", code)
			}
			if subtotal != 300 {
				t.Fatalf("expected subtotal 300, got %d", subtotal)
			}
			return services.PromoQuote{Code: "SAVE5", Type: domain.PromoTypePercentage, DiscountAmount: 15}, nil
		},
	}
	NewPromoHandlers(service).Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/promos/validate", bytes.NewBufferString(`{"code":"SAVE5","subtotal":300}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp promoValidateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Valid {
		t.Fatal("expected valid quote")
	}
	if resp.Discount != 15 || resp.Total != 285 {
		t.Fatalf("expected discount 15 and total 285, got %d/%d", resp.Discount, resp.Total)
	}
}

func TestPromoHandlersValidateRejected(t *testing.T) {
	router := chi.NewRouter()
	service := &stubPromoService{
		validateFunc: func(context.Context, string, int64) (services.PromoQuote, error) {
			return services.PromoQuote{}, services.NewRejectionError("SAVE5", domain.PromoReasonBelowMinimum)
		},
	}
	NewPromoHandlers(service).Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/promos/validate", bytes.NewBufferString(`{"code":"SAVE5","subtotal":10}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}

	var resp promoValidateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Valid {
		t.Fatal("expected rejection")
	}
	if resp.Reason != string(domain.PromoReasonBelowMinimum) {
		t.Fatalf("expected reason below_minimum, got %s", resp.Reason)
	}
}

func TestPromoHandlersValidateNotFound(t *testing.T) {
	router := chi.NewRouter()
	service := &stubPromoService{
		validateFunc: func(context.Context, string, int64) (services.PromoQuote, error) {
			return services.PromoQuote{}, services.ErrPromoNotFound
		},
	}
	NewPromoHandlers(service).Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/promos/validate", bytes.NewBufferString(`{"code":"NOPE","subtotal":300}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestPromoHandlersValidateRejectsBadBody(t *testing.T) {
	router := chi.NewRouter()
	NewPromoHandlers(&stubPromoService{}).Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/promos/validate", bytes.NewBufferString(`{not json`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
