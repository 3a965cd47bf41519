package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/clovermart/storefront/internal/domain"
	"github.com/clovermart/storefront/internal/repositories"
)

type stubProductRepository struct {
	products  map[string]domain.Product
	captured  []domain.StockAdjustment
	adjustErr error
}

func (r *stubProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorProductNotFound, "product "+productID+" not found", nil)
	}
	return product, nil
}

func (r *stubProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	page := domain.CursorPage[domain.Product]{}
	for _, product := range r.products {
		if filter.ActiveOnly && !product.Active {
			continue
		}
		page.Items = append(page.Items, product)
	}
	return page, nil
}

func (r *stubProductRepository) AdjustStock(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error {
	if r.adjustErr != nil {
		return r.adjustErr
	}
	r.captured = adjustments
	for _, adj := range adjustments {
		product, ok := r.products[adj.ProductID]
		if !ok {
			return repositories.NewStockError(repositories.StockErrorProductNotFound, "product "+adj.ProductID+" not found", nil)
		}
		if product.Quantity < int64(adj.Quantity) {
			return repositories.NewStockError(repositories.StockErrorInsufficient, "insufficient stock for "+adj.ProductID, nil)
		}
	}
	for _, adj := range adjustments {
		product := r.products[adj.ProductID]
		product.Quantity -= int64(adj.Quantity)
		product.Sold += int64(adj.Quantity)
		r.products[adj.ProductID] = product
	}
	return nil
}

func newTestInventoryService(t *testing.T, repo repositories.ProductRepository) InventoryService {
	t.Helper()
	svc, err := NewInventoryService(InventoryServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}
	return svc
}

func TestInventoryAdjustMovesBothCounters(t *testing.T) {
	repo := &stubProductRepository{
		products: map[string]domain.Product{
			"prod-1": {ID: "prod-1", Quantity: 5, Sold: 10},
		},
	}
	svc := newTestInventoryService(t, repo)

	err := svc.Adjust(context.Background(), []StockAdjustment{{ProductID: "prod-1", Quantity: 3}})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}

	product := repo.products["prod-1"]
	if product.Quantity != 2 {
		t.Fatalf("quantity = %d, want 2", product.Quantity)
	}
	if product.Sold != 13 {
		t.Fatalf("sold = %d, want 13", product.Sold)
	}
}

func TestInventoryAdjustAggregatesDuplicateLines(t *testing.T) {
	repo := &stubProductRepository{
		products: map[string]domain.Product{
			"prod-1": {ID: "prod-1", Quantity: 10},
		},
	}
	svc := newTestInventoryService(t, repo)

	err := svc.Adjust(context.Background(), []StockAdjustment{
		{ProductID: "prod-1", Quantity: 2},
		{ProductID: "prod-1", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if len(repo.captured) != 1 {
		t.Fatalf("expected one aggregated adjustment, got %d", len(repo.captured))
	}
	if repo.captured[0].Quantity != 5 {
		t.Fatalf("aggregated quantity = %d, want 5", repo.captured[0].Quantity)
	}
}

func TestInventoryAdjustInsufficientStock(t *testing.T) {
	repo := &stubProductRepository{
		products: map[string]domain.Product{
			"prod-1": {ID: "prod-1", Quantity: 2, Sold: 1},
		},
	}
	svc := newTestInventoryService(t, repo)

	err := svc.Adjust(context.Background(), []StockAdjustment{{ProductID: "prod-1", Quantity: 3}})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	// No clamping: the failed adjustment must leave counters untouched.
	product := repo.products["prod-1"]
	if product.Quantity != 2 || product.Sold != 1 {
		t.Fatalf("counters mutated on failure: %+v", product)
	}
}

func TestInventoryAdjustUnknownProduct(t *testing.T) {
	repo := &stubProductRepository{products: map[string]domain.Product{}}
	svc := newTestInventoryService(t, repo)

	err := svc.Adjust(context.Background(), []StockAdjustment{{ProductID: "ghost", Quantity: 1}})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("err = %v, want ErrProductNotFound", err)
	}
}

func TestInventoryAdjustValidatesLines(t *testing.T) {
	svc := newTestInventoryService(t, &stubProductRepository{products: map[string]domain.Product{}})

	if err := svc.Adjust(context.Background(), nil); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("err = %v, want ErrInventoryInvalidInput", err)
	}
	if err := svc.Adjust(context.Background(), []StockAdjustment{{ProductID: "prod-1", Quantity: 0}}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("err = %v, want ErrInventoryInvalidInput", err)
	}
}
