package handlers

import (
	"context"
	"errors"

	domain "github.com/clovermart/storefront/internal/domain"
	"github.com/clovermart/storefront/internal/services"
)

type stubPromoService struct {
	validateFunc func(ctx context.Context, code string, subtotal int64) (services.PromoQuote, error)
	commitFunc   func(ctx context.Context, code string) error
}

func (s *stubPromoService) Validate(ctx context.Context, code string, subtotal int64) (services.PromoQuote, error) {
	if s.validateFunc == nil {
		return services.PromoQuote{}, errors.New("unexpected Validate call")
	}
	return s.validateFunc(ctx, code, subtotal)
}

func (s *stubPromoService) CommitUsage(ctx context.Context, code string) error {
	if s.commitFunc == nil {
		return errors.New("unexpected CommitUsage call")
	}
	return s.commitFunc(ctx, code)
}

type stubCatalogService struct {
	getFunc  func(ctx context.Context, productID, locale string) (services.ProductView, error)
	listFunc func(ctx context.Context, query services.ProductListQuery) (domain.CursorPage[services.ProductView], error)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID, locale string) (services.ProductView, error) {
	if s.getFunc == nil {
		return services.ProductView{}, errors.New("unexpected GetProduct call")
	}
	return s.getFunc(ctx, productID, locale)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, query services.ProductListQuery) (domain.CursorPage[services.ProductView], error) {
	if s.listFunc == nil {
		return domain.CursorPage[services.ProductView]{}, errors.New("unexpected ListProducts call")
	}
	return s.listFunc(ctx, query)
}

type stubOrderService struct {
	createFunc     func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
	getFunc        func(ctx context.Context, orderID string) (services.Order, error)
	getByGWFunc    func(ctx context.Context, gatewayOrderID string) (services.Order, error)
	finalizeFunc   func(ctx context.Context, orderID string) (services.FinalizeResult, error)
	transitionFunc func(ctx context.Context, cmd services.TransitionStatusCommand) (services.Order, error)
	listFunc       func(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[services.Order], error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFunc == nil {
		return services.Order{}, errors.New("unexpected Create call")
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubOrderService) Get(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFunc == nil {
		return services.Order{}, errors.New("unexpected Get call")
	}
	return s.getFunc(ctx, orderID)
}

func (s *stubOrderService) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (services.Order, error) {
	if s.getByGWFunc == nil {
		return services.Order{}, errors.New("unexpected GetByGatewayOrderID call")
	}
	return s.getByGWFunc(ctx, gatewayOrderID)
}

func (s *stubOrderService) Finalize(ctx context.Context, orderID string) (services.FinalizeResult, error) {
	if s.finalizeFunc == nil {
		return services.FinalizeResult{}, errors.New("unexpected Finalize call")
	}
	return s.finalizeFunc(ctx, orderID)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.TransitionStatusCommand) (services.Order, error) {
	if s.transitionFunc == nil {
		return services.Order{}, errors.New("unexpected TransitionStatus call")
	}
	return s.transitionFunc(ctx, cmd)
}

func (s *stubOrderService) List(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[services.Order], error) {
	if s.listFunc == nil {
		return domain.CursorPage[services.Order]{}, errors.New("unexpected List call")
	}
	return s.listFunc(ctx, query)
}
