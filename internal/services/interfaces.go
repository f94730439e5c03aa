package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/handling-fee/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart                = domain.Cart
	FeeLine             = domain.FeeLine
	ShippingPackage     = domain.ShippingPackage
	ChosenSelections    = domain.ChosenSelections
	HandlingFeeSettings = domain.HandlingFeeSettings
	SystemHealthReport  = domain.SystemHealthReport
)

// HandlingFeeService runs the handling fee pass for a cart.
type HandlingFeeService interface {
	// RecalculateFees evaluates the rule against the finalised shipping selections and
	// reconciles the cart's handling fee line.
	RecalculateFees(ctx context.Context, cmd RecalculateFeesCommand) (FeeCalculationResult, error)
	GetFees(ctx context.Context, cartID string) (Cart, error)
}

// HandlingFeeSettingsService is the administrative read/write path for the fee amount.
type HandlingFeeSettingsService interface {
	GetSettings(ctx context.Context) (HandlingFeeSettings, error)
	UpdateSettings(ctx context.Context, cmd UpdateHandlingFeeSettingsCommand) (HandlingFeeSettings, error)
}

// SystemService exposes health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// HandlingFeeSettingsReader is the read side of the settings store used on the fee pass.
type HandlingFeeSettingsReader interface {
	GetHandlingFeeSettings(ctx context.Context) (domain.HandlingFeeSettings, error)
}

// SettingsEventPublisher announces changes to the handling fee configuration.
type SettingsEventPublisher interface {
	PublishSettingsUpdated(ctx context.Context, event HandlingFeeSettingsEvent) error
}

// RecalculateFeesCommand carries one fee pass. Packages and Selections must already be
// final for the pass.
type RecalculateFeesCommand struct {
	CartID     string
	Packages   []ShippingPackage
	Selections ChosenSelections
}

// FeeCalculationResult summarises a fee pass.
type FeeCalculationResult struct {
	Cart     Cart
	Decision bool
	Amount   int64
	Currency string
	Removed  bool
	Added    bool
	Changed  bool
	Trace    RuleTrace
}

// UpdateHandlingFeeSettingsCommand sets the fee from a decimal string such as "5.00".
type UpdateHandlingFeeSettingsCommand struct {
	Amount  string
	ActorID string
}

// HandlingFeeSettingsEvent is published after the fee amount changes.
type HandlingFeeSettingsEvent struct {
	ID         string
	Type       string
	Amount     int64
	Previous   int64
	Currency   string
	ActorID    string
	OccurredAt time.Time
}
