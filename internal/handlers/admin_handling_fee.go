package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/handling-fee/internal/platform/httpx"
	"github.com/hanko-field/handling-fee/internal/services"
)

const maxAdminSettingsBodySize = 4 * 1024

// AdminHandlingFeeHandlers manages the configured handling fee amount.
type AdminHandlingFeeHandlers struct {
	settings services.HandlingFeeSettingsService
	token    string
}

// NewAdminHandlingFeeHandlers requires a bearer token on every request when token is non-empty.
func NewAdminHandlingFeeHandlers(settings services.HandlingFeeSettingsService, token string) *AdminHandlingFeeHandlers {
	return &AdminHandlingFeeHandlers{settings: settings, token: strings.TrimSpace(token)}
}

func (h *AdminHandlingFeeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(h.requireToken)
	r.Get("/handling-fee", h.getSettings)
	r.Put("/handling-fee", h.putSettings)
}

func (h *AdminHandlingFeeHandlers) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		scheme, presented, _ := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
		if !strings.EqualFold(scheme, "Bearer") || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), []byte(h.token)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "admin token required", http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type handlingFeeSettingsPayload struct {
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amountMinor"`
	Currency    string `json:"currency"`
	Configured  bool   `json:"configured"`
	UpdatedBy   string `json:"updatedBy,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type updateHandlingFeeRequest struct {
	Amount *string `json:"amount"`
	Actor  string  `json:"actor"`
}

func (h *AdminHandlingFeeHandlers) getSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settings_service_unavailable", "settings service is unavailable", http.StatusServiceUnavailable))
		return
	}
	settings, err := h.settings.GetSettings(ctx)
	if err != nil {
		writeSettingsError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildSettingsPayload(settings))
}

func (h *AdminHandlingFeeHandlers) putSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settings_service_unavailable", "settings service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminSettingsBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateHandlingFeeRequest
	if err := decodeStrictJSON(body, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "amount" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_amount", `amount must be a decimal string such as "5.00"`, http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body: "+err.Error(), http.StatusBadRequest))
		return
	}
	if req.Amount == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount is required", http.StatusBadRequest))
		return
	}

	updated, err := h.settings.UpdateSettings(ctx, services.UpdateHandlingFeeSettingsCommand{
		Amount:  *req.Amount,
		ActorID: req.Actor,
	})
	if err != nil {
		writeSettingsError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildSettingsPayload(updated))
}

func buildSettingsPayload(settings services.HandlingFeeSettings) handlingFeeSettingsPayload {
	return handlingFeeSettingsPayload{
		Amount:      services.FormatMinorUnits(settings.Amount, settings.Currency),
		AmountMinor: settings.Amount,
		Currency:    settings.Currency,
		Configured:  !settings.UpdatedAt.IsZero(),
		UpdatedBy:   settings.UpdatedBy,
		UpdatedAt:   formatTime(settings.UpdatedAt),
	}
}

func writeSettingsError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrHandlingFeeSettingsInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_amount", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrHandlingFeeSettingsUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("settings_unavailable", "handling fee settings are unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process handling fee settings", http.StatusInternalServerError))
	}
}
