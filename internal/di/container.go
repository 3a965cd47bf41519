package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clovermart/storefront/internal/platform/config"
	"github.com/clovermart/storefront/internal/repositories"
	"github.com/clovermart/storefront/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in
// NewContainer.
type Services struct {
	Catalog   services.CatalogService
	Promos    services.PromoService
	Inventory services.InventoryService
	Counters  services.CounterService
	Orders    services.OrderService
	System    services.SystemService
}

// Infrastructure carries platform collaborators built in main: the event
// publisher, the archive writer, and observability hooks. All fields are
// optional; missing ones degrade gracefully.
type Infrastructure struct {
	Events   services.OrderEventPublisher
	Archiver services.OrderArchiver
	Logger   func(ctx context.Context, event string, fields map[string]any)
	Clock    func() time.Time
	Build    services.BuildInfo
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring
// provides Firestore-backed repositories, while tests can supply in-memory
// registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}

	if reg.Products != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Repository: reg.Products,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc

		inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
			Repository: reg.Products,
			Clock:      clock,
			Logger:     infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build inventory service: %w", err)
		}
		svc.Inventory = inventorySvc
	}

	if reg.Promos != nil && cfg.Features.EnablePromotions {
		promoSvc, err := services.NewPromoService(services.PromoServiceDeps{
			Repository: reg.Promos,
			Clock:      clock,
			Logger:     infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build promo service: %w", err)
		}
		svc.Promos = promoSvc
	}

	if reg.Counters != nil {
		counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
			Repository: reg.Counters,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build counter service: %w", err)
		}
		svc.Counters = counterSvc
	}

	if reg.Orders != nil {
		if svc.Counters == nil {
			return Services{}, errors.New("build order service: counter repository is required")
		}
		if svc.Inventory == nil {
			return Services{}, errors.New("build order service: product repository is required")
		}
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:     reg.Orders,
			Counters:   svc.Counters,
			Promos:     svc.Promos,
			Inventory:  svc.Inventory,
			UnitOfWork: reg.UnitOfWork,
			Clock:      clock,
			Events:     infra.Events,
			Archiver:   infra.Archiver,
			Logger:     infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if reg.Health != nil {
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: reg.Health,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
