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
	productsCollection     = "products"
	defaultProductPageSize = 20
	maxProductPageSize     = 100
)

type productDocument struct {
	SKU         string    `firestore:"sku"`
	Name        string    `firestore:"name"`
	Description string    `firestore:"description"`
	Price       int64     `firestore:"price"`
	Currency    string    `firestore:"currency"`
	Quantity    int64     `firestore:"quantity"`
	Sold        int64     `firestore:"sold"`
	Active      bool      `firestore:"active"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		SKU:         d.SKU,
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		Currency:    d.Currency,
		Quantity:    d.Quantity,
		Sold:        d.Sold,
		Active:      d.Active,
		UpdatedAt:   d.UpdatedAt,
	}
}

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{provider: provider, products: base}, nil
}

// FindByID loads a single product. Joins an ambient transaction when present.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "product id is required", nil)
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		ref, err := r.products.DocumentRef(ctx, id)
		if err != nil {
			return domain.Product{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return domain.Product{}, repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", id), err)
			}
			return domain.Product{}, pfirestore.WrapError("products.get", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Product{}, fmt.Errorf("decode product %s: %w", id, err)
		}
		return doc.toDomain(id), nil
	}

	doc, err := r.products.Get(ctx, id)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Product{}, repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", id), err)
		}
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a page of products ordered by document ID.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultProductPageSize
	}
	if pageSize > maxProductPageSize {
		pageSize = maxProductPageSize
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	query := client.Collection(productsCollection).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)
	if filter.ActiveOnly {
		query = query.Where("active", "==", true)
	}
	if token := strings.TrimSpace(filter.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "invalid page token", err)
		}
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var items []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}

	page := domain.CursorPage[domain.Product]{Items: items}
	if len(items) > pageSize {
		page.Items = items[:pageSize]
		token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{page.Items[pageSize-1].ID}})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// AdjustStock decrements quantity and increments sold for every line. All
// reads are performed before any write. A line that would drive quantity
// negative fails the whole call; nothing is clamped.
func (r *ProductRepository) AdjustStock(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if len(adjustments) == 0 {
		return repositories.NewStockError(repositories.StockErrorInvalidInput, "at least one adjustment is required", nil)
	}
	for _, line := range adjustments {
		if strings.TrimSpace(line.ProductID) == "" {
			return repositories.NewStockError(repositories.StockErrorInvalidInput, "product id is required", nil)
		}
		if line.Quantity <= 0 {
			return repositories.NewStockError(repositories.StockErrorInvalidInput, fmt.Sprintf("quantity for %s must be > 0", line.ProductID), nil)
		}
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return r.adjustInTx(ctx, tx, adjustments, now)
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return r.adjustInTx(ctx, tx, adjustments, now)
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return stockErr
		}
		return pfirestore.WrapError("products.adjust", err)
	}
	return nil
}

func (r *ProductRepository) adjustInTx(ctx context.Context, tx *firestore.Transaction, adjustments []domain.StockAdjustment, now time.Time) error {
	type pendingWrite struct {
		ref *firestore.DocumentRef
		doc productDocument
	}

	writes := make([]pendingWrite, 0, len(adjustments))
	for _, line := range adjustments {
		id := strings.TrimSpace(line.ProductID)
		ref, err := r.products.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", id), err)
			}
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", id, err)
		}

		qty := int64(line.Quantity)
		if doc.Quantity < qty {
			return repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s", id), nil)
		}
		doc.Quantity -= qty
		doc.Sold += qty
		doc.UpdatedAt = now.UTC()
		writes = append(writes, pendingWrite{ref: ref, doc: doc})
	}

	for _, w := range writes {
		if err := stageOrApply(ctx, tx, func(tx *firestore.Transaction) error {
			return tx.Set(w.ref, w.doc)
		}); err != nil {
			return err
		}
	}
	return nil
}
