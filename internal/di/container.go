package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hanko-field/handling-fee/internal/platform/config"
	"github.com/hanko-field/handling-fee/internal/repositories"
	"github.com/hanko-field/handling-fee/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	HandlingFees services.HandlingFeeService
	Settings     services.HandlingFeeSettingsService
	// System is nil when the registry carries no health repository.
	System services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

type containerOptions struct {
	publisher services.SettingsEventPublisher
	logger    func(context.Context, string, map[string]any)
	build     services.BuildInfo
	clock     func() time.Time
}

// Option customises container construction.
type Option func(*containerOptions)

// WithSettingsPublisher announces settings changes through publisher.
func WithSettingsPublisher(publisher services.SettingsEventPublisher) Option {
	return func(o *containerOptions) { o.publisher = publisher }
}

// WithEventLogger sets the event logger handed to every service.
func WithEventLogger(logger func(context.Context, string, map[string]any)) Option {
	return func(o *containerOptions) { o.logger = logger }
}

func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) { o.build = build }
}

func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer builds the services on top of reg using cfg's handling fee section.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	o := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	svc, err := buildServices(ctx, reg, cfg, o)
	if err != nil {
		return nil, err
	}
	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases the registry's clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, o containerOptions) (Services, error) {
	var svc Services

	settingsRepo := reg.HandlingFeeSettings()
	settingsSvc, err := services.NewHandlingFeeSettingsService(services.HandlingFeeSettingsServiceDeps{
		Repository: settingsRepo,
		Publisher:  o.publisher,
		Currency:   cfg.HandlingFee.Currency,
		Clock:      o.clock,
		Logger:     o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build handling fee settings service: %w", err)
	}
	svc.Settings = settingsSvc

	feeSvc, err := services.NewHandlingFeeService(services.HandlingFeeServiceDeps{
		Carts:           reg.Carts(),
		Settings:        settingsRepo,
		Rule:            services.NewHandlingFeeRule(cfg.HandlingFee.InclusionMethodID, cfg.HandlingFee.ExclusionMethodID, nil),
		DefaultCurrency: cfg.HandlingFee.Currency,
		Clock:           o.clock,
		Logger:          o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build handling fee service: %w", err)
	}
	svc.HandlingFees = feeSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := o.build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            o.clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
