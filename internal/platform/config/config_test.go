package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func loadFromMap(t *testing.T, env map[string]string, opts ...Option) (Config, error) {
	t.Helper()
	base := []Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}
	return Load(context.Background(), append(base, opts...)...)
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := loadFromMap(t, map[string]string{"API_FIRESTORE_PROJECT_ID": "hf-dev"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.HandlingFee.InclusionMethodID != "interparcel" || cfg.HandlingFee.ExclusionMethodID != "ds_local_pickup" {
		t.Errorf("unexpected default methods %+v", cfg.HandlingFee)
	}
	if cfg.HandlingFee.Currency != "AUD" {
		t.Errorf("expected default currency AUD, got %s", cfg.HandlingFee.Currency)
	}
	if cfg.Redis.Enabled() {
		t.Errorf("expected redis disabled without address")
	}
	if cfg.Redis.SettingsTTL != defaultRedisSettingsTTL {
		t.Errorf("unexpected settings ttl %s", cfg.Redis.SettingsTTL)
	}
	if cfg.PubSub.ProjectID != "hf-dev" || cfg.Secrets.ProjectID != "hf-dev" {
		t.Errorf("expected pubsub and secrets to default to firestore project, got %+v %+v", cfg.PubSub, cfg.Secrets)
	}
	if cfg.PubSub.SettingsTopic != "" {
		t.Errorf("expected no settings topic by default, got %s", cfg.PubSub.SettingsTopic)
	}
	if cfg.RateLimits.RecalculatePerSecond != defaultRecalcPerSecond || cfg.RateLimits.RecalculateBurst != defaultRecalcBurst {
		t.Errorf("unexpected rate limits %+v", cfg.RateLimits)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                   "9090",
		"API_SERVER_WRITE_TIMEOUT":          "25s",
		"API_FIRESTORE_PROJECT_ID":          "hf-prod",
		"API_FIRESTORE_EMULATOR_HOST":       "localhost:8081",
		"API_REDIS_ADDR":                    "redis:6379",
		"API_REDIS_PASSWORD":                "secret://redis/password",
		"API_REDIS_DB":                      "2",
		"API_REDIS_SETTINGS_TTL":            "1m",
		"API_PUBSUB_PROJECT_ID":             "hf-events",
		"API_PUBSUB_SETTINGS_TOPIC":         "handling-fee-settings",
		"API_HANDLING_FEE_INCLUSION_METHOD": "auspost",
		"API_HANDLING_FEE_EXCLUSION_METHOD": "click_collect",
		"API_HANDLING_FEE_CURRENCY":         "nzd",
		"API_RATELIMIT_RECALC_PER_SEC":      "2.5",
		"API_RATELIMIT_RECALC_BURST":        "10",
		"API_SECURITY_ENVIRONMENT":          "PROD",
		"API_ADMIN_TOKEN":                   "sm://admin/token",
	}
	secrets := map[string]string{
		"secret://redis/password": "redis-pass",
		"secret://admin/token":    "admin-token",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := loadFromMap(t, env, WithSecretResolver(resolver), WithRequiredSecrets("Security.AdminToken"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Firestore.EmulatorHost != "localhost:8081" {
		t.Errorf("unexpected emulator host %s", cfg.Firestore.EmulatorHost)
	}
	if !cfg.Redis.Enabled() || cfg.Redis.Password != "redis-pass" || cfg.Redis.DB != 2 || cfg.Redis.SettingsTTL != time.Minute {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.PubSub.ProjectID != "hf-events" || cfg.PubSub.SettingsTopic != "handling-fee-settings" {
		t.Errorf("unexpected pubsub config %+v", cfg.PubSub)
	}
	if cfg.HandlingFee.InclusionMethodID != "auspost" || cfg.HandlingFee.ExclusionMethodID != "click_collect" || cfg.HandlingFee.Currency != "NZD" {
		t.Errorf("unexpected handling fee config %+v", cfg.HandlingFee)
	}
	if cfg.RateLimits.RecalculatePerSecond != 2.5 || cfg.RateLimits.RecalculateBurst != 10 {
		t.Errorf("unexpected rate limits %+v", cfg.RateLimits)
	}
	if cfg.Security.Environment != "prod" || cfg.Security.AdminToken != "admin-token" {
		t.Errorf("unexpected security config %+v", cfg.Security)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]struct {
		env   map[string]string
		field string
	}{
		"missing project": {
			env:   map[string]string{},
			field: "Firestore.ProjectID",
		},
		"same methods": {
			env: map[string]string{
				"API_FIRESTORE_PROJECT_ID":          "hf",
				"API_HANDLING_FEE_INCLUSION_METHOD": "interparcel",
				"API_HANDLING_FEE_EXCLUSION_METHOD": "interparcel",
			},
			field: "HandlingFee.ExclusionMethodID",
		},
		"unknown currency": {
			env:   map[string]string{"API_FIRESTORE_PROJECT_ID": "hf", "API_HANDLING_FEE_CURRENCY": "ZZZ"},
			field: "HandlingFee.Currency",
		},
		"redis without ttl": {
			env:   map[string]string{"API_FIRESTORE_PROJECT_ID": "hf", "API_REDIS_ADDR": "redis:6379", "API_REDIS_SETTINGS_TTL": "0s"},
			field: "Redis.SettingsTTL",
		},
		"prod without admin token": {
			env:   map[string]string{"API_FIRESTORE_PROJECT_ID": "hf", "API_SECURITY_ENVIRONMENT": "prod"},
			field: "Security.AdminToken",
		},
		"limit without burst": {
			env:   map[string]string{"API_FIRESTORE_PROJECT_ID": "hf", "API_RATELIMIT_RECALC_BURST": "0"},
			field: "RateLimits.RecalculateBurst",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadFromMap(t, tc.env)
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, field := range validation.Fields() {
				if field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in %v", tc.field, validation.Fields())
			}
		})
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	_, err := loadFromMap(t, map[string]string{
		"API_FIRESTORE_PROJECT_ID": "hf-dev",
		"API_ADMIN_TOKEN":          "secret://missing",
	})
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected unconfigured resolver cause, got %v", err)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := loadFromMap(t, map[string]string{"API_FIRESTORE_PROJECT_ID": "hf-dev"}, WithRequiredSecrets("Security.AdminToken", "Security.AdminToken"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Security.AdminToken" {
		t.Fatalf("unexpected missing names %v", names)
	}
	redacted := missing.RedactedNames()
	if len(redacted) != 1 || redacted[0] == "Security.AdminToken" || len(redacted[0]) != 16 {
		t.Fatalf("expected hashed name, got %v", redacted)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nexport API_FIRESTORE_PROJECT_ID=dot-project\nAPI_SECRETS_FALLBACK_FILE=\".dot.local\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRETS_PROJECT_ID", "os-secrets")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRETS_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRETS_PROJECT_ID"]; got != "os-secrets" {
		t.Fatalf("expected system env value, got %s", got)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("API_FIRESTORE_PROJECT_ID=from-file\nAPI_SERVER_PORT=7070\n"), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}
	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(envPath), WithEnvMap(map[string]string{"API_SERVER_PORT": "9999"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firestore.ProjectID != "from-file" {
		t.Fatalf("expected project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Server.Port != "9999" {
		t.Fatalf("expected explicit map to win over dotenv, got %s", cfg.Server.Port)
	}
}
