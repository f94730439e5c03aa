package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/handling-fee/internal/repositories"
)

// DefaultHandlingFeeCurrency applies when no currency is configured.
const DefaultHandlingFeeCurrency = "AUD"

// SettingsUpdatedEventType names the event published after the fee changes.
const SettingsUpdatedEventType = "handling_fee.settings_updated"

const maxActorIDLength = 128

var errSettingsRepositoryRequired = errors.New("handling fee settings service: repository is required")

// ErrHandlingFeeSettingsInvalid indicates the submitted amount was rejected.
var ErrHandlingFeeSettingsInvalid = errors.New("handling fee settings service: invalid settings")

// ErrHandlingFeeSettingsUnavailable indicates the settings store cannot serve the request.
var ErrHandlingFeeSettingsUnavailable = errors.New("handling fee settings service: unavailable")

// HandlingFeeSettingsServiceDeps wires the settings store and change notifications.
type HandlingFeeSettingsServiceDeps struct {
	Repository  repositories.HandlingFeeSettingsRepository
	Publisher   SettingsEventPublisher
	Currency    string
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type handlingFeeSettingsService struct {
	repo      repositories.HandlingFeeSettingsRepository
	publisher SettingsEventPublisher
	currency  string
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
	newID     func() string
}

var _ HandlingFeeSettingsService = (*handlingFeeSettingsService)(nil)

// NewHandlingFeeSettingsService validates the currency so every amount can be scaled.
func NewHandlingFeeSettingsService(deps HandlingFeeSettingsServiceDeps) (HandlingFeeSettingsService, error) {
	if deps.Repository == nil {
		return nil, errSettingsRepositoryRequired
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = DefaultHandlingFeeCurrency
	}
	if _, err := CurrencyScale(currency); err != nil {
		return nil, fmt.Errorf("handling fee settings service: %w", err)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &handlingFeeSettingsService{
		repo:      deps.Repository,
		publisher: deps.Publisher,
		currency:  currency,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
		newID:     idGen,
	}, nil
}

// GetSettings returns the last saved amount, or zero when nothing was ever saved.
func (s *handlingFeeSettingsService) GetSettings(ctx context.Context) (HandlingFeeSettings, error) {
	settings, err := s.repo.GetHandlingFeeSettings(ctx)
	if err != nil {
		if repositories.IsNotFound(err) {
			return HandlingFeeSettings{Currency: s.currency}, nil
		}
		return HandlingFeeSettings{}, s.translateRepoError(err)
	}
	if settings.Amount < 0 {
		settings.Amount = 0
	}
	if strings.TrimSpace(settings.Currency) == "" {
		settings.Currency = s.currency
	}
	return settings, nil
}

func (s *handlingFeeSettingsService) UpdateSettings(ctx context.Context, cmd UpdateHandlingFeeSettingsCommand) (HandlingFeeSettings, error) {
	amount, err := ParseMinorUnits(cmd.Amount, s.currency)
	if err != nil {
		return HandlingFeeSettings{}, fmt.Errorf("%w: %v", ErrHandlingFeeSettingsInvalid, err)
	}
	actor := strings.TrimSpace(cmd.ActorID)
	if len(actor) > maxActorIDLength {
		return HandlingFeeSettings{}, fmt.Errorf("%w: actor id exceeds %d bytes", ErrHandlingFeeSettingsInvalid, maxActorIDLength)
	}

	previous, err := s.GetSettings(ctx)
	if err != nil {
		s.logger(ctx, "handling_fee.settings_previous_unavailable", map[string]any{"error": err.Error()})
	}

	saved, err := s.repo.SaveHandlingFeeSettings(ctx, HandlingFeeSettings{
		Amount:    amount,
		Currency:  s.currency,
		UpdatedBy: actor,
		UpdatedAt: s.now(),
	})
	if err != nil {
		s.logger(ctx, "handling_fee.settings_save_failed", map[string]any{"error": err.Error()})
		return HandlingFeeSettings{}, s.translateRepoError(err)
	}

	s.logger(ctx, "handling_fee.settings_updated", map[string]any{
		"amount":   saved.Amount,
		"previous": previous.Amount,
		"currency": saved.Currency,
		"actorID":  saved.UpdatedBy,
	})

	if s.publisher != nil {
		event := HandlingFeeSettingsEvent{
			ID:         s.newID(),
			Type:       SettingsUpdatedEventType,
			Amount:     saved.Amount,
			Previous:   previous.Amount,
			Currency:   saved.Currency,
			ActorID:    saved.UpdatedBy,
			OccurredAt: saved.UpdatedAt,
		}
		if err := s.publisher.PublishSettingsUpdated(ctx, event); err != nil {
			s.logger(ctx, "handling_fee.settings_publish_failed", map[string]any{
				"eventID": event.ID,
				"error":   err.Error(),
			})
		}
	}
	return saved, nil
}

func (s *handlingFeeSettingsService) translateRepoError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ErrHandlingFeeSettingsUnavailable
}
