package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultRedisSettingsTTL    = 30 * time.Second
	defaultRedisKeyPrefix      = "handling-fee"
	defaultInclusionMethodID   = "interparcel"
	defaultExclusionMethodID   = "ds_local_pickup"
	defaultHandlingFeeCurrency = "AUD"
	defaultRecalcPerSecond     = 5
	defaultRecalcBurst         = 20
	defaultSecurityEnvironment = "local"
	defaultSecretsFallbackFile = ".secrets.local"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firestore   FirestoreConfig
	Redis       RedisConfig
	PubSub      PubSubConfig
	HandlingFee HandlingFeeConfig
	RateLimits  RateLimitConfig
	Security    SecurityConfig
	Secrets     SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RedisConfig enables the settings cache when Addr is set.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	SettingsTTL time.Duration
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool { return strings.TrimSpace(c.Addr) != "" }

// PubSubConfig enables settings change events when SettingsTopic is set.
type PubSubConfig struct {
	ProjectID     string
	SettingsTopic string
}

// HandlingFeeConfig holds the rule's method identifiers and the fee currency.
type HandlingFeeConfig struct {
	InclusionMethodID string
	ExclusionMethodID string
	Currency          string
}

// RateLimitConfig throttles the recalculation endpoint per client.
type RateLimitConfig struct {
	RecalculatePerSecond float64
	RecalculateBurst     int
}

// SecurityConfig guards the administrative routes.
type SecurityConfig struct {
	Environment string
	AdminToken  string
}

// SecretsConfig points the secret fetcher at its project and local fallback file.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing.
// Names are hashed in the message so logs never reveal which secret is absent.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed identifiers of the missing secrets.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

// Names returns the config field names of the missing secrets.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects explicit values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks secret fields as mandatory, by field name
// (e.g. "Security.AdminToken").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// Load assembles the configuration from defaults, .env overrides, the environment and
// secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	lookup := newLookup(options, dotEnv)

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:        stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password:    stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:          intWithDefault(lookup, "API_REDIS_DB", 0),
			KeyPrefix:   stringWithDefault(lookup, "API_REDIS_KEY_PREFIX", defaultRedisKeyPrefix),
			SettingsTTL: durationWithDefault(lookup, "API_REDIS_SETTINGS_TTL", defaultRedisSettingsTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:     stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			SettingsTopic: stringWithDefault(lookup, "API_PUBSUB_SETTINGS_TOPIC", ""),
		},
		HandlingFee: HandlingFeeConfig{
			InclusionMethodID: stringWithDefault(lookup, "API_HANDLING_FEE_INCLUSION_METHOD", defaultInclusionMethodID),
			ExclusionMethodID: stringWithDefault(lookup, "API_HANDLING_FEE_EXCLUSION_METHOD", defaultExclusionMethodID),
			Currency:          strings.ToUpper(stringWithDefault(lookup, "API_HANDLING_FEE_CURRENCY", defaultHandlingFeeCurrency)),
		},
		RateLimits: RateLimitConfig{
			RecalculatePerSecond: floatWithDefault(lookup, "API_RATELIMIT_RECALC_PER_SEC", defaultRecalcPerSecond),
			RecalculateBurst:     intWithDefault(lookup, "API_RATELIMIT_RECALC_BURST", defaultRecalcBurst),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			AdminToken:  stringWithDefault(lookup, "API_ADMIN_TOKEN", ""),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "API_SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "API_SECRETS_FALLBACK_FILE", defaultSecretsFallbackFile),
		},
	}

	// Pub/Sub and Secret Manager live in the Firestore project unless told otherwise.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Redis.Password", &cfg.Redis.Password},
		{"Security.AdminToken", &cfg.Security.AdminToken},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !isSecretReference(trimmed) {
		return value, nil
	}
	ref := normalizeSecretReference(trimmed)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		invalid = append(invalid, "Firestore.ProjectID")
	}
	if cfg.HandlingFee.InclusionMethodID == "" {
		invalid = append(invalid, "HandlingFee.InclusionMethodID")
	}
	if cfg.HandlingFee.ExclusionMethodID == "" || cfg.HandlingFee.ExclusionMethodID == cfg.HandlingFee.InclusionMethodID {
		invalid = append(invalid, "HandlingFee.ExclusionMethodID")
	}
	if _, err := currency.ParseISO(cfg.HandlingFee.Currency); err != nil {
		invalid = append(invalid, "HandlingFee.Currency")
	}
	if cfg.Redis.Enabled() && cfg.Redis.SettingsTTL <= 0 {
		invalid = append(invalid, "Redis.SettingsTTL")
	}
	if cfg.RateLimits.RecalculatePerSecond < 0 {
		invalid = append(invalid, "RateLimits.RecalculatePerSecond")
	}
	if cfg.RateLimits.RecalculatePerSecond > 0 && cfg.RateLimits.RecalculateBurst <= 0 {
		invalid = append(invalid, "RateLimits.RecalculateBurst")
	}
	if cfg.Security.Environment == "prod" && strings.TrimSpace(cfg.Security.AdminToken) == "" {
		invalid = append(invalid, "Security.AdminToken")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{})
	var missing []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

func normalizeSecretReference(value string) string {
	if rest, ok := strings.CutPrefix(value, "sm://"); ok {
		return "secret://" + rest
	}
	return value
}
