package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanko-field/handling-fee/internal/repositories"
)

const instrumentationName = "github.com/hanko-field/handling-fee/internal/services"

var (
	errHandlingFeeCartsRequired    = errors.New("handling fee service: cart repository is required")
	errHandlingFeeSettingsRequired = errors.New("handling fee service: settings reader is required")
)

// ErrHandlingFeeInvalidInput indicates the caller supplied invalid input.
var ErrHandlingFeeInvalidInput = errors.New("handling fee service: invalid input")

// ErrHandlingFeeCartNotFound indicates the requested cart does not exist.
var ErrHandlingFeeCartNotFound = errors.New("handling fee service: cart not found")

// ErrHandlingFeeConflict indicates the cart changed while the pass was running.
var ErrHandlingFeeConflict = errors.New("handling fee service: conflict")

// ErrHandlingFeeUnavailable indicates the cart store cannot serve the request.
var ErrHandlingFeeUnavailable = errors.New("handling fee service: unavailable")

// HandlingFeeServiceDeps wires the collaborators of the fee pass.
type HandlingFeeServiceDeps struct {
	Carts           repositories.CartRepository
	Settings        HandlingFeeSettingsReader
	Rule            HandlingFeeRule
	DefaultCurrency string
	Clock           func() time.Time
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
	Tracer          trace.Tracer
	Meter           metric.Meter
}

type handlingFeeService struct {
	carts     repositories.CartRepository
	settings  HandlingFeeSettingsReader
	rule      HandlingFeeRule
	currency  string
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
	tracer    trace.Tracer
	decisions metric.Int64Counter
}

var _ HandlingFeeService = (*handlingFeeService)(nil)

// NewHandlingFeeService constructs the fee pass service. A zero Rule uses the default method IDs.
func NewHandlingFeeService(deps HandlingFeeServiceDeps) (HandlingFeeService, error) {
	if deps.Carts == nil {
		return nil, errHandlingFeeCartsRequired
	}
	if deps.Settings == nil {
		return nil, errHandlingFeeSettingsRequired
	}

	rule := deps.Rule
	if rule.inclusion == "" || rule.exclusion == "" {
		rule = NewHandlingFeeRule(rule.inclusion, rule.exclusion, rule.observer)
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = DefaultHandlingFeeCurrency
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
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	decisions, err := meter.Int64Counter(
		"handling_fee.decisions",
		metric.WithDescription("Handling fee passes by decision"),
	)
	if err != nil {
		logger(context.Background(), "handling_fee.metric_register_failed", map[string]any{"error": err.Error()})
	}

	return &handlingFeeService{
		carts:     deps.Carts,
		settings:  deps.Settings,
		rule:      rule,
		currency:  currency,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
		tracer:    tracer,
		decisions: decisions,
	}, nil
}

func (s *handlingFeeService) RecalculateFees(ctx context.Context, cmd RecalculateFeesCommand) (FeeCalculationResult, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	if cartID == "" {
		return FeeCalculationResult{}, ErrHandlingFeeInvalidInput
	}

	ctx, span := s.tracer.Start(ctx, "handling_fee.recalculate", trace.WithAttributes(
		attribute.String("cart.id", cartID),
		attribute.Int("shipping.packages", len(cmd.Packages)),
	))
	defer span.End()

	cart, exists, err := s.loadCart(ctx, cartID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load cart")
		return FeeCalculationResult{}, err
	}

	amount, currency := s.configuredAmount(ctx, cart)

	var ruleTrace RuleTrace
	decision := s.rule.WithObserver(func(t RuleTrace) { ruleTrace = t }).Evaluate(cmd.Packages, cmd.Selections)

	fees := cart.Fees.Clone()
	recon := ReconcileHandlingFee(&fees, decision, amount, currency, s.newID, s.now())

	if recon.Changed || !exists {
		cart.Fees = fees
		var expected *time.Time
		if exists {
			token := cart.UpdatedAt
			expected = &token
		}
		saved, err := s.carts.SaveFees(ctx, cart, expected)
		if err != nil {
			translated := s.translateRepoError(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "save fees")
			s.logger(ctx, "handling_fee.save_failed", map[string]any{
				"cartID": cartID,
				"error":  err.Error(),
			})
			return FeeCalculationResult{}, translated
		}
		cart = saved
	}

	span.SetAttributes(
		attribute.Bool("handling_fee.decision", decision),
		attribute.Bool("handling_fee.changed", recon.Changed),
	)
	if s.decisions != nil {
		s.decisions.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("applied", recon.Added),
			attribute.Bool("changed", recon.Changed),
		))
	}
	s.logger(ctx, "handling_fee.recalculated", map[string]any{
		"cartID":    cartID,
		"decision":  decision,
		"amount":    amount,
		"currency":  currency,
		"stoppedAt": ruleTrace.StoppedAt,
		"steps":     describeSteps(ruleTrace.Steps),
		"removed":   recon.Removed,
		"added":     recon.Added,
		"changed":   recon.Changed,
	})

	return FeeCalculationResult{
		Cart:     cart,
		Decision: decision,
		Amount:   amount,
		Currency: currency,
		Removed:  recon.Removed,
		Added:    recon.Added,
		Changed:  recon.Changed,
		Trace:    ruleTrace,
	}, nil
}

func (s *handlingFeeService) GetFees(ctx context.Context, cartID string) (Cart, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return Cart{}, ErrHandlingFeeInvalidInput
	}
	cart, err := s.carts.GetCart(ctx, id)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// loadCart returns the stored cart, or a fresh one when the cart has never been priced.
func (s *handlingFeeService) loadCart(ctx context.Context, cartID string) (Cart, bool, error) {
	cart, err := s.carts.GetCart(ctx, cartID)
	if err == nil {
		if strings.TrimSpace(cart.Currency) == "" {
			cart.Currency = s.currency
		}
		return cart, true, nil
	}
	if repositories.IsNotFound(err) {
		return Cart{ID: cartID, Currency: s.currency}, false, nil
	}
	return Cart{}, false, s.translateRepoError(err)
}

// configuredAmount reads the fee once for the pass. Anything that prevents a usable
// amount resolves to zero, which removes the fee.
func (s *handlingFeeService) configuredAmount(ctx context.Context, cart Cart) (int64, string) {
	settings, err := s.settings.GetHandlingFeeSettings(ctx)
	switch {
	case err == nil:
	case repositories.IsNotFound(err):
		return 0, cart.Currency
	default:
		s.logger(ctx, "handling_fee.settings_unavailable", map[string]any{
			"cartID": cart.ID,
			"error":  err.Error(),
		})
		return 0, cart.Currency
	}

	currency := strings.ToUpper(strings.TrimSpace(settings.Currency))
	if currency == "" {
		currency = s.currency
	}
	if !strings.EqualFold(currency, cart.Currency) {
		s.logger(ctx, "handling_fee.currency_mismatch", map[string]any{
			"cartID":           cart.ID,
			"cartCurrency":     cart.Currency,
			"settingsCurrency": currency,
		})
		return 0, cart.Currency
	}
	return settings.Amount, currency
}

func (s *handlingFeeService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrHandlingFeeCartNotFound
		case repoErr.IsConflict():
			return ErrHandlingFeeConflict
		}
	}
	return ErrHandlingFeeUnavailable
}

func describeSteps(steps []RuleStep) []string {
	if len(steps) == 0 {
		return nil
	}
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		out = append(out, strconv.Itoa(step.PackageIndex)+":"+step.MethodID)
	}
	return out
}
