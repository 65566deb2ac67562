package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blockbazaar/api/internal/platform/config"
	"github.com/blockbazaar/api/internal/repositories"
	"github.com/blockbazaar/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders   services.OrderService
	Evidence services.PaymentEvidenceService
	Sweeper  services.OrderSweeperService
	System   services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container construction with optional collaborators.
type Option func(*containerOptions)

type containerOptions struct {
	events   services.OrderEventPublisher
	uploader services.EvidenceUploader
	logger   func(ctx context.Context, event string, fields map[string]any)
	clock    func() time.Time
	build    services.BuildInfo
}

// WithOrderEvents injects the order event publisher shared by the services.
func WithOrderEvents(events services.OrderEventPublisher) Option {
	return func(o *containerOptions) {
		o.events = events
	}
}

// WithEvidenceUploader injects the screenshot uploader for payment evidence.
func WithEvidenceUploader(uploader services.EvidenceUploader) Option {
	return func(o *containerOptions) {
		o.uploader = uploader
	}
}

// WithServiceLogger injects the structured event logger hook.
func WithServiceLogger(logger func(ctx context.Context, event string, fields map[string]any)) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithClock overrides the clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithBuildInfo attaches build metadata surfaced through the system service.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// real implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	svc, err := buildServices(cfg, reg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, options containerOptions) (Services, error) {
	var svc Services

	ordersRepo := reg.Orders()
	if ordersRepo == nil {
		return Services{}, errors.New("order repository is required")
	}
	historyRepo := reg.OrderStatusHistory()

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     ordersRepo,
		Carts:      reg.Carts(),
		History:    historyRepo,
		UnitOfWork: reg,
		Clock:      options.clock,
		Events:     options.events,
		Logger:     options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	evidenceSvc, err := services.NewPaymentEvidenceService(services.PaymentEvidenceServiceDeps{
		Orders:   ordersRepo,
		History:  historyRepo,
		Uploader: options.uploader,
		Clock:    options.clock,
		Events:   options.events,
		Logger:   options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment evidence service: %w", err)
	}
	svc.Evidence = evidenceSvc

	if cfg.Sweeper.Enabled {
		sweeperSvc, err := services.NewOrderSweeperService(services.OrderSweeperDeps{
			Orders:    ordersRepo,
			Clock:     options.clock,
			Interval:  cfg.Sweeper.Interval,
			OrphanAge: cfg.Sweeper.OrphanAge,
			BatchSize: cfg.Sweeper.BatchSize,
			Events:    options.events,
			Logger:    options.logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order sweeper: %w", err)
		}
		svc.Sweeper = sweeperSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := options.build
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            options.clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
