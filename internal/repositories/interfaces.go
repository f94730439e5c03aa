package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/hanko-field/handling-fee/internal/domain"
)

// RepositoryError exposes classification helpers so services can map storage failures.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository persists the fee state of checkout carts.
type CartRepository interface {
	GetCart(ctx context.Context, cartID string) (domain.Cart, error)
	// SaveFees writes the cart's fee lines. When expectedUpdate is non-nil the write only
	// succeeds if the stored cart was last updated at that instant. A nil expectedUpdate
	// creates the cart. Both fail with IsConflict when another writer got there first.
	SaveFees(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error)
}

// HandlingFeeSettingsRepository stores the single handling fee configuration document.
type HandlingFeeSettingsRepository interface {
	// GetHandlingFeeSettings returns an IsNotFound error when the fee was never configured.
	GetHandlingFeeSettings(ctx context.Context) (domain.HandlingFeeSettings, error)
	SaveHandlingFeeSettings(ctx context.Context, settings domain.HandlingFeeSettings) (domain.HandlingFeeSettings, error)
}

// HealthRepository reports dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// IsNotFound reports whether err classifies as a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
