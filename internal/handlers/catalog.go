package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clovermart/storefront/internal/platform/httpx"
	"github.com/clovermart/storefront/internal/platform/pagination"
	"github.com/clovermart/storefront/internal/services"
)

// CatalogHandlers exposes public, read-only catalog endpoints.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs the public catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers catalog endpoints under the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productId}", h.getProduct)
}

type productResponse struct {
	ID           string `json:"id"`
	SKU          string `json:"sku,omitempty"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Price        int64  `json:"price"`
	Currency     string `json:"currency"`
	DisplayPrice string `json:"displayPrice"`
	Quantity     int64  `json:"quantity"`
	InStock      bool   `json:"inStock"`
}

type productListResponse struct {
	Items         []productResponse `json:"items"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultListPageSize,
		MaxPageSize:     maxListPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.ProductListQuery{
		Locale:    strings.TrimSpace(r.URL.Query().Get("locale")),
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}

	page, err := h.catalog.ListProducts(ctx, query)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := productListResponse{
		Items:         make([]productResponse, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, view := range page.Items {
		payload.Items = append(payload.Items, toProductResponse(view))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	view, err := h.catalog.GetProduct(ctx, productID, strings.TrimSpace(r.URL.Query().Get("locale")))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toProductResponse(view))
}

func toProductResponse(view services.ProductView) productResponse {
	return productResponse{
		ID:           view.ID,
		SKU:          view.SKU,
		Name:         view.Name,
		Description:  view.Description,
		Price:        view.Price,
		Currency:     view.Currency,
		DisplayPrice: view.DisplayPrice,
		Quantity:     view.Quantity,
		InStock:      view.Quantity > 0,
	}
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to read catalog", http.StatusInternalServerError))
	}
}
