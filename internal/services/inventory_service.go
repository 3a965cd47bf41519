package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/clovermart/storefront/internal/domain"
	"github.com/clovermart/storefront/internal/repositories"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid adjustment lines.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrProductNotFound indicates a referenced product has no stock record.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrInsufficientStock indicates an adjustment would drive stock negative;
	// the whole finalization aborts rather than clamping.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryUnavailable indicates the stock backend could not be reached.
	ErrInventoryUnavailable = errors.New("inventory: unavailable")
)

// InventoryServiceDeps bundles collaborators required to construct the inventory service.
type InventoryServiceDeps struct {
	Repository repositories.ProductRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.ProductRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Repository == nil {
		return nil, errors.New("inventory service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Adjust decrements quantity and increments sold per line. Lines referencing
// the same product are aggregated before the repository call.
func (s *inventoryService) Adjust(ctx context.Context, lines []StockAdjustment) error {
	normalized, err := normalizeAdjustments(lines)
	if err != nil {
		return err
	}

	if err := s.repo.AdjustStock(ctx, normalized, s.clock()); err != nil {
		return s.mapRepositoryError(ctx, err)
	}
	return nil
}

func (s *inventoryService) mapRepositoryError(ctx context.Context, err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrInsufficientStock, stockErr.Message)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrProductNotFound, stockErr.Message)
		case repositories.StockErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, stockErr.Message)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		s.logger(ctx, "inventory.adjust.unavailable", map[string]any{"error": err.Error()})
		return fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
	}
	return err
}

func normalizeAdjustments(lines []StockAdjustment) ([]StockAdjustment, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInventoryInvalidInput)
	}

	index := make(map[string]int, len(lines))
	normalized := make([]StockAdjustment, 0, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrInventoryInvalidInput, productID)
		}
		if at, ok := index[productID]; ok {
			normalized[at].Quantity += line.Quantity
			continue
		}
		index[productID] = len(normalized)
		normalized = append(normalized, domain.StockAdjustment{ProductID: productID, Quantity: line.Quantity})
	}
	return normalized, nil
}
