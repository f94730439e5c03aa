package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/handling-fee/internal/domain"
	"github.com/hanko-field/handling-fee/internal/platform/httpx"
	"github.com/hanko-field/handling-fee/internal/services"
)

const maxRecalculateBodySize = 64 * 1024

// FeeHandlers exposes the handling fee pass for checkout carts.
type FeeHandlers struct {
	fees    services.HandlingFeeService
	limiter *ipRateLimiter
}

// FeeHandlerOption customises FeeHandlers.
type FeeHandlerOption func(*FeeHandlers)

// WithRecalculateRateLimit throttles recalculation per client IP. A non-positive rate disables it.
func WithRecalculateRateLimit(perSecond float64, burst int) FeeHandlerOption {
	return func(h *FeeHandlers) {
		h.limiter = newIPRateLimiter(perSecond, burst, nil)
	}
}

func NewFeeHandlers(fees services.HandlingFeeService, opts ...FeeHandlerOption) *FeeHandlers {
	h := &FeeHandlers{fees: fees}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires /carts/{cartId}/fees endpoints onto r.
func (h *FeeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{cartId}/fees", h.getFees)
	r.With(h.limiter.Middleware).Post("/{cartId}/fees:recalculate", h.recalculate)
}

type recalculateRequest struct {
	Packages   []packagePayload  `json:"packages"`
	Selections map[string]string `json:"selections"`
}

type packagePayload struct {
	Index int                    `json:"index"`
	Rates map[string]ratePayload `json:"rates"`
}

type ratePayload struct {
	MethodID string `json:"methodId"`
}

type feeLinePayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amountMinor"`
	Currency    string `json:"currency"`
	AddedAt     string `json:"addedAt,omitempty"`
}

type cartFeesResponse struct {
	CartID    string           `json:"cartId"`
	Currency  string           `json:"currency"`
	Fees      []feeLinePayload `json:"fees"`
	UpdatedAt string           `json:"updatedAt,omitempty"`
}

type recalculateResponse struct {
	cartFeesResponse
	Decision  bool `json:"decision"`
	Changed   bool `json:"changed"`
	Added     bool `json:"added"`
	Removed   bool `json:"removed"`
	StoppedAt *int `json:"stoppedAt,omitempty"`
}

func (h *FeeHandlers) recalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fees == nil {
		httpx.WriteError(ctx, w, httpx.NewError("fee_service_unavailable", "fee service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxRecalculateBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	cmd, err := parseRecalculateRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cmd.CartID = chi.URLParam(r, "cartId")

	result, err := h.fees.RecalculateFees(ctx, cmd)
	if err != nil {
		writeFeeError(ctx, w, err)
		return
	}

	resp := recalculateResponse{
		cartFeesResponse: buildCartFeesResponse(result.Cart),
		Decision:         result.Decision,
		Changed:          result.Changed,
		Added:            result.Added,
		Removed:          result.Removed,
	}
	if result.Trace.StoppedAt >= 0 {
		stopped := result.Trace.StoppedAt
		resp.StoppedAt = &stopped
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *FeeHandlers) getFees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fees == nil {
		httpx.WriteError(ctx, w, httpx.NewError("fee_service_unavailable", "fee service is unavailable", http.StatusServiceUnavailable))
		return
	}
	cart, err := h.fees.GetFees(ctx, chi.URLParam(r, "cartId"))
	if err != nil {
		writeFeeError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCartFeesResponse(cart))
}

func parseRecalculateRequest(body []byte) (services.RecalculateFeesCommand, error) {
	var req recalculateRequest
	if err := decodeStrictJSON(body, &req); err != nil {
		return services.RecalculateFeesCommand{}, fmt.Errorf("invalid JSON body: %v", err)
	}

	cmd := services.RecalculateFeesCommand{
		Packages:   make([]services.ShippingPackage, 0, len(req.Packages)),
		Selections: make(services.ChosenSelections, len(req.Selections)),
	}
	seen := make(map[int]struct{}, len(req.Packages))
	for _, pkg := range req.Packages {
		if pkg.Index < 0 {
			return services.RecalculateFeesCommand{}, errors.New("package index must be non-negative")
		}
		if _, dup := seen[pkg.Index]; dup {
			return services.RecalculateFeesCommand{}, fmt.Errorf("duplicate package index %d", pkg.Index)
		}
		seen[pkg.Index] = struct{}{}

		rates := make(map[string]domain.ShippingRate, len(pkg.Rates))
		for id, rate := range pkg.Rates {
			rates[id] = domain.ShippingRate{ID: id, MethodID: strings.TrimSpace(rate.MethodID)}
		}
		cmd.Packages = append(cmd.Packages, services.ShippingPackage{Index: pkg.Index, Rates: rates})
	}
	for key, rateID := range req.Selections {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || strconv.Itoa(index) != key {
			return services.RecalculateFeesCommand{}, fmt.Errorf("selection key %q is not a package index", key)
		}
		cmd.Selections[index] = rateID
	}
	return cmd, nil
}

func buildCartFeesResponse(cart services.Cart) cartFeesResponse {
	lines := cart.Fees.Lines()
	resp := cartFeesResponse{
		CartID:    cart.ID,
		Currency:  cart.Currency,
		Fees:      make([]feeLinePayload, 0, len(lines)),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
	for _, line := range lines {
		currency := line.Currency
		if currency == "" {
			currency = cart.Currency
		}
		resp.Fees = append(resp.Fees, feeLinePayload{
			ID:          line.ID,
			Name:        string(line.Name),
			Amount:      services.FormatMinorUnits(line.Amount, currency),
			AmountMinor: line.Amount,
			Currency:    currency,
			AddedAt:     formatTime(line.AddedAt),
		})
	}
	return resp
}

func writeFeeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrHandlingFeeInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cart id is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrHandlingFeeCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrHandlingFeeConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart was modified concurrently, retry the request", http.StatusConflict))
	case errors.Is(err, services.ErrHandlingFeeUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_store_unavailable", "cart storage is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process fees", http.StatusInternalServerError))
	}
}
