package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/handling-fee/internal/domain"
	"github.com/hanko-field/handling-fee/internal/repositories"
)

// SettingsRepository holds the handling fee settings in memory.
type SettingsRepository struct {
	mu       sync.RWMutex
	settings *domain.HandlingFeeSettings
	now      func() time.Time
}

var _ repositories.HandlingFeeSettingsRepository = (*SettingsRepository)(nil)

// NewSettingsRepository constructs an unconfigured repository.
func NewSettingsRepository(clock func() time.Time) *SettingsRepository {
	if clock == nil {
		clock = time.Now
	}
	return &SettingsRepository{now: func() time.Time { return clock().UTC() }}
}

// GetHandlingFeeSettings implements repositories.HandlingFeeSettingsRepository.
func (r *SettingsRepository) GetHandlingFeeSettings(context.Context) (domain.HandlingFeeSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.settings == nil {
		return domain.HandlingFeeSettings{}, notFound("settings.get", "handling fee not configured")
	}
	return *r.settings, nil
}

// SaveHandlingFeeSettings implements repositories.HandlingFeeSettingsRepository.
func (r *SettingsRepository) SaveHandlingFeeSettings(_ context.Context, settings domain.HandlingFeeSettings) (domain.HandlingFeeSettings, error) {
	saved := settings
	saved.Currency = strings.ToUpper(strings.TrimSpace(settings.Currency))
	saved.UpdatedBy = strings.TrimSpace(settings.UpdatedBy)
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = r.now()
	}

	r.mu.Lock()
	r.settings = &saved
	r.mu.Unlock()
	return saved, nil
}
