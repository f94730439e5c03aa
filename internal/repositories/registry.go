package repositories

import (
	"context"
	"errors"
)

// Registry hands out the repositories of one storage backend and owns their clients.
type Registry interface {
	Carts() CartRepository
	HandlingFeeSettings() HandlingFeeSettingsRepository
	// Health may be nil when no dependency checks are configured.
	Health() HealthRepository
	Close(ctx context.Context) error
}

// RegistryDeps lists the repositories and the client shutdown hooks of a backend.
type RegistryDeps struct {
	Carts    CartRepository
	Settings HandlingFeeSettingsRepository
	Health   HealthRepository
	Closers  []func(context.Context) error
}

type registry struct {
	deps RegistryDeps
}

// NewRegistry validates deps. Closers run in reverse order on Close.
func NewRegistry(deps RegistryDeps) (Registry, error) {
	if deps.Carts == nil {
		return nil, errors.New("registry: cart repository is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("registry: handling fee settings repository is required")
	}
	deps.Closers = append([]func(context.Context) error(nil), deps.Closers...)
	return &registry{deps: deps}, nil
}

func (r *registry) Carts() CartRepository { return r.deps.Carts }
func (r *registry) HandlingFeeSettings() HandlingFeeSettingsRepository { return r.deps.Settings }
func (r *registry) Health() HealthRepository { return r.deps.Health }

func (r *registry) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.deps.Closers) - 1; i >= 0; i-- {
		if closer := r.deps.Closers[i]; closer != nil {
			if err := closer(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
