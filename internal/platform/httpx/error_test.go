package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/handling-fee/internal/platform/requestctx"
)

func TestWriteErrorIncludesRequestAndTrace(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "trace-1"})

	rec := httptest.NewRecorder()
	WriteError(ctx, rec, NewError("cart_not_found", "cart\nmissing", http.StatusNotFound).WithDetails(map[string]any{"cart_id": "c1"}))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %s", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "cart_not_found" || body["message"] != "cart missing" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["request_id"] != "req-1" || body["trace_id"] != "trace-1" || body["cart_id"] != "c1" {
		t.Fatalf("expected ids and details, got %v", body)
	}
}

func TestWriteErrorDetailsCannotOverrideEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), rec, NewError("bad", "bad request", 0).WithDetails(map[string]any{"error": "spoofed"}))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected zero status to map to 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "bad" {
		t.Fatalf("expected envelope code to win, got %v", body["error"])
	}
}
