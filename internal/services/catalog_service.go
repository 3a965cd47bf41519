package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/clovermart/storefront/internal/domain"
	"github.com/clovermart/storefront/internal/repositories"
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid query parameters.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogProductNotFound indicates the product does not exist or is not public.
	ErrCatalogProductNotFound = errors.New("catalog: product not found")
	// ErrCatalogUnavailable indicates the catalog backend could not be reached.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

var catalogLocales = []language.Tag{
	language.English, // fallback
	language.Japanese,
	language.Hindi,
	language.German,
}

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Repository repositories.ProductRepository
	Policy     *bluemonday.Policy
}

type catalogService struct {
	repo    repositories.ProductRepository
	policy  *bluemonday.Policy
	matcher language.Matcher
}

// NewCatalogService wires dependencies into a concrete CatalogService
// implementation. Descriptions are stored as vendor-supplied HTML, so every
// public read passes through the sanitizer policy.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Repository == nil {
		return nil, errors.New("catalog service: repository is required")
	}

	policy := deps.Policy
	if policy == nil {
		policy = bluemonday.UGCPolicy()
	}

	return &catalogService{
		repo:    deps.Repository,
		policy:  policy,
		matcher: language.NewMatcher(catalogLocales),
	}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string, locale string) (ProductView, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return ProductView{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return ProductView{}, s.mapRepositoryError(err)
	}
	if !product.Active {
		return ProductView{}, fmt.Errorf("%w: %s", ErrCatalogProductNotFound, id)
	}
	return s.view(product, locale), nil
}

func (s *catalogService) ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[ProductView], error) {
	page, err := s.repo.List(ctx, repositories.ProductListFilter{
		ActiveOnly: true,
		PageSize:   query.PageSize,
		PageToken:  query.PageToken,
	})
	if err != nil {
		return domain.CursorPage[ProductView]{}, s.mapRepositoryError(err)
	}

	views := make([]ProductView, 0, len(page.Items))
	for _, product := range page.Items {
		views = append(views, s.view(product, query.Locale))
	}
	return domain.CursorPage[ProductView]{Items: views, NextPageToken: page.NextPageToken}, nil
}

func (s *catalogService) view(product domain.Product, locale string) ProductView {
	product.Description = s.policy.Sanitize(product.Description)
	return ProductView{
		Product:      product,
		DisplayPrice: s.formatPrice(product, locale),
	}
}

// formatPrice renders the minor-unit price for the matched locale. Unknown
// locales fall back to English rather than failing the read.
func (s *catalogService) formatPrice(product domain.Product, locale string) string {
	tag := language.English
	if trimmed := strings.TrimSpace(locale); trimmed != "" {
		if parsed, err := language.Parse(trimmed); err == nil {
			tag, _, _ = s.matcher.Match(parsed)
		}
	}

	printer := message.NewPrinter(tag)
	units := product.Price / 100
	cents := product.Price % 100
	currency := strings.ToUpper(strings.TrimSpace(product.Currency))
	if currency == "" {
		return printer.Sprintf("%d.%02d", units, cents)
	}
	return printer.Sprintf("%s %d.%02d", currency, units, cents)
}

func (s *catalogService) mapRepositoryError(err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrCatalogProductNotFound, stockErr.Message)
		case repositories.StockErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrCatalogInvalidInput, stockErr.Message)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return fmt.Errorf("%w: %v", ErrCatalogProductNotFound, err)
		}
		if repoErr.IsUnavailable() {
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return err
}
