package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/handling-fee/internal/domain"
	pfirestore "github.com/hanko-field/handling-fee/internal/platform/firestore"
	"github.com/hanko-field/handling-fee/internal/repositories"
)

const (
	settingsCollection  = "settings"
	handlingFeeDocument = "handlingFee"
)

// SettingsRepository stores the handling fee configuration at settings/handlingFee.
type SettingsRepository struct {
	settings *pfirestore.Collection[handlingFeeSettingsDocument]
}

var _ repositories.HandlingFeeSettingsRepository = (*SettingsRepository)(nil)

// NewSettingsRepository constructs a Firestore-backed settings repository.
func NewSettingsRepository(provider *pfirestore.Provider) (*SettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("settings repository requires firestore provider")
	}
	return &SettingsRepository{
		settings: pfirestore.NewCollection[handlingFeeSettingsDocument](provider, settingsCollection),
	}, nil
}

// GetHandlingFeeSettings implements repositories.HandlingFeeSettingsRepository.
func (r *SettingsRepository) GetHandlingFeeSettings(ctx context.Context) (domain.HandlingFeeSettings, error) {
	snap, err := r.settings.Get(ctx, handlingFeeDocument)
	if err != nil {
		return domain.HandlingFeeSettings{}, err
	}
	updatedAt := snap.Data.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = snap.UpdateTime
	}
	return domain.HandlingFeeSettings{
		Amount:    snap.Data.Amount,
		Currency:  strings.ToUpper(strings.TrimSpace(snap.Data.Currency)),
		UpdatedBy: snap.Data.UpdatedBy,
		UpdatedAt: updatedAt.UTC(),
	}, nil
}

// SaveHandlingFeeSettings implements repositories.HandlingFeeSettingsRepository.
func (r *SettingsRepository) SaveHandlingFeeSettings(ctx context.Context, settings domain.HandlingFeeSettings) (domain.HandlingFeeSettings, error) {
	saved := settings
	saved.Currency = strings.ToUpper(strings.TrimSpace(settings.Currency))
	saved.UpdatedBy = strings.TrimSpace(settings.UpdatedBy)
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = time.Now().UTC()
	}

	doc := handlingFeeSettingsDocument{
		Amount:    saved.Amount,
		Currency:  saved.Currency,
		UpdatedBy: saved.UpdatedBy,
		UpdatedAt: saved.UpdatedAt.UTC(),
	}
	if _, err := r.settings.Set(ctx, handlingFeeDocument, doc); err != nil {
		return domain.HandlingFeeSettings{}, err
	}
	return saved, nil
}

type handlingFeeSettingsDocument struct {
	Amount    int64     `firestore:"amount"`
	Currency  string    `firestore:"currency"`
	UpdatedBy string    `firestore:"updatedBy,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}
