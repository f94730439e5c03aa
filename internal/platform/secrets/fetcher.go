package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/hanko-field/handling-fee/internal/platform/secrets"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (secretManagerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret://NAME[?version=V&project=P] references against Secret
// Manager. Resolved values are cached for the process lifetime. When Secret Manager
// refuses or is unreachable the local fallback file is consulted instead.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	project    string

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type options struct {
	logger       *zap.Logger
	project      string
	fallbackPath string
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
}

// Option customises a Fetcher.
type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDefaultProject sets the project used when a reference carries none.
func WithDefaultProject(projectID string) Option {
	return func(o *options) { o.project = strings.TrimSpace(projectID) }
}

// WithFallbackFile points at a KEY=VALUE file of local secrets. Empty disables it.
func WithFallbackFile(path string) Option {
	return func(o *options) { o.fallbackPath = strings.TrimSpace(path) }
}

func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithSecretManagerClient injects a client; the Fetcher will not close it.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(o *options) { o.client = client }
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}

// NewFetcher never fails on a missing Secret Manager client; it degrades to fallback-only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	o := options{fallbackPath: defaultFallbackPath}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.meter == nil {
		o.meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		client:       o.client,
		logger:       o.logger,
		project:      o.project,
		fallbackPath: o.fallbackPath,
		cache:        make(map[string]string),
	}

	var err error
	if f.latency, err = o.meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution"),
	); err != nil {
		o.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	}
	if f.cacheHits, err = o.meter.Int64Counter("secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from cache"),
	); err != nil {
		o.logger.Warn("secrets: cache hit metric unavailable", zap.Error(err))
	}

	if f.client == nil && f.project != "" {
		client, err := newSecretManagerClient(ctx, o.clientOpts...)
		if err != nil {
			o.logger.Warn("secrets: secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the Secret Manager client when the Fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value behind ref.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := parsed.cacheKey()

	f.mu.RLock()
	value, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", maskReference(parsed.canonical))))
		}
		f.record(ctx, start, "cache")
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = f.project
	}
	if project != "" && f.client != nil {
		value, err := f.fetchRemote(ctx, project, parsed)
		if err == nil {
			f.store(key, value)
			f.record(ctx, start, "remote")
			return value, nil
		}
		if !fallbackEligible(err) {
			f.record(ctx, start, "error")
			return "", fmt.Errorf("secrets: fetch %s: %w", parsed.canonical, err)
		}
		f.logger.Debug("secrets: using fallback", zap.String("secret", maskReference(parsed.canonical)), zap.Error(err))
	}

	value, ok = f.lookupFallback(parsed)
	if !ok {
		f.record(ctx, start, "error")
		return "", fmt.Errorf("secrets: no value for %s", parsed.canonical)
	}
	f.store(key, value)
	f.record(ctx, start, "fallback")
	return value, nil
}

// Invalidate drops every cached version of ref.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	prefix := parsed.canonical + "#"
	f.mu.Lock()
	for key := range f.cache {
		if strings.HasPrefix(key, prefix) {
			delete(f.cache, key)
		}
	}
	f.mu.Unlock()
}

func (f *Fetcher) fetchRemote(ctx context.Context, project string, ref reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.secret, ref.versionOrLatest())
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret manager returned no payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) record(ctx context.Context, start time.Time, source string) {
	if f.latency == nil {
		return
	}
	f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

func (f *Fetcher) lookupFallback(ref reference) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		f.logger.Warn("secrets: fallback file unreadable", zap.Error(f.fallbackErr))
		return "", false
	}
	value, ok := f.fallback[ref.canonical]
	return value, ok
}

// loadFallback reads "secret://name=value" lines. sm:// keys are accepted as an alias.
func (f *Fetcher) loadFallback() {
	f.fallback = map[string]string{}
	if f.fallbackPath == "" {
		return
	}
	file, err := os.Open(f.fallbackPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.fallbackErr = fmt.Errorf("secrets: open %s: %w", f.fallbackPath, err)
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if strings.HasPrefix(key, "sm://") {
			key = "secret://" + strings.TrimPrefix(key, "sm://")
		}
		parsed, err := parseReference(key)
		if err != nil {
			continue
		}
		f.fallback[parsed.canonical] = value
	}
	if err := scanner.Err(); err != nil {
		f.fallbackErr = fmt.Errorf("secrets: read %s: %w", f.fallbackPath, err)
	}
}

type reference struct {
	canonical string
	secret    string
	version   string
	project   string
}

func (r reference) versionOrLatest() string {
	if r.version == "" {
		return "latest"
	}
	return r.version
}

func (r reference) cacheKey() string {
	return r.canonical + "#" + r.versionOrLatest()
}

func parseReference(ref string) (reference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(u.Host+u.Path, "/")
	if secret == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	query := u.Query()
	return reference{
		canonical: "secret://" + secret,
		secret:    secret,
		version:   strings.TrimSpace(query.Get("version")),
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func maskReference(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:8])
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
