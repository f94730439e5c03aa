package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const adminTokenResource = "projects/test/secrets/admin_token/versions/latest"

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[adminTokenResource] = "remote-token"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("test"),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://admin_token")
		if err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
		if got != "remote-token" {
			t.Fatalf("expected remote-token, got %s", got)
		}
	}
	if calls := client.callCount(adminTokenResource); calls != 1 {
		t.Fatalf("expected one remote fetch, got %d", calls)
	}

	fetcher.Invalidate("secret://admin_token")
	if _, err := fetcher.ResolveSecret(ctx, "secret://admin_token"); err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if calls := client.callCount(adminTokenResource); calls != 2 {
		t.Fatalf("expected refetch after invalidate, got %d", calls)
	}
}

func TestResolveHonoursVersionAndProjectOverrides(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values["projects/other/secrets/redis_password/versions/3"] = "v3"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("test"))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://redis_password?version=3&project=other")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "v3" {
		t.Fatalf("expected v3, got %s", got)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()
	fallbackPath := writeFallback(t, "# local dev\nsm://admin_token=local-token\n")

	client := newFakeSecretClient()
	client.errors[adminTokenResource] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("test"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	got, err := fetcher.Resolve(ctx, "secret://admin_token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "local-token" {
		t.Fatalf("expected local-token, got %s", got)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()
	fallbackPath := writeFallback(t, "secret://admin_token=local-token\n")

	client := newFakeSecretClient()
	client.errors[adminTokenResource] = status.Error(codes.NotFound, "missing")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("test"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if _, err := fetcher.Resolve(ctx, "secret://admin_token"); err == nil {
		t.Fatal("expected error when the secret is missing remotely")
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()

	original := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (secretManagerClient, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { newSecretManagerClient = original })

	fetcher, err := NewFetcher(ctx,
		WithDefaultProject("test"),
		WithFallbackFile(writeFallback(t, "secret://admin_token=local-token\n")),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(ctx, "secret://admin_token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "local-token" {
		t.Fatalf("expected local-token, got %s", value)
	}
}

func TestResolveRejectsMalformedReferences(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	for _, ref := range []string{"", "https://example.com/x", "secret://"} {
		if _, err := fetcher.Resolve(context.Background(), ref); err == nil {
			t.Fatalf("expected %q to be rejected", ref)
		}
	}
	if _, err := fetcher.Resolve(context.Background(), "secret://absent"); err == nil {
		t.Fatalf("expected error when no source has the secret")
	}
}

func writeFallback(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	return path
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++
	if err := f.errors[name]; err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
