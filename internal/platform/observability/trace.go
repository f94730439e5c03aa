package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanko-field/handling-fee/internal/platform/requestctx"
)

// CloudTraceHeader carries "TRACE_ID/SPAN_ID;o=OPTIONS" on Google front ends.
const CloudTraceHeader = "X-Cloud-Trace-Context"

const tracerName = "github.com/hanko-field/handling-fee/internal/platform/observability"

// TraceMiddleware continues the caller's Cloud Trace context when present, opens a
// server span for the request and echoes the resulting context in the response.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if remote, ok := parseCloudTraceContext(r.Header.Get(CloudTraceHeader)); ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
			}

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...),
			)
			defer span.End()

			sc := span.SpanContext()
			info := requestctx.TraceInfo{ProjectID: projectID, Sampled: sc.IsSampled()}
			if sc.HasTraceID() {
				info.TraceID = sc.TraceID().String()
			}
			if sc.HasSpanID() {
				info.SpanID = sc.SpanID().String()
			}
			if header := formatCloudTraceHeader(info); header != "" {
				w.Header().Set(CloudTraceHeader, header)
			}

			next.ServeHTTP(w, r.WithContext(requestctx.WithTrace(ctx, info)))
		})
	}
}

func parseCloudTraceContext(header string) (trace.SpanContext, bool) {
	traceHex, rest, found := strings.Cut(strings.TrimSpace(header), "/")
	if !found {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return trace.SpanContext{}, false
	}

	spanPart, options, _ := strings.Cut(rest, ";")
	// Span IDs in this header are decimal.
	spanNum, err := strconv.ParseUint(strings.TrimSpace(spanPart), 10, 64)
	if err != nil || spanNum == 0 {
		return trace.SpanContext{}, false
	}
	var spanID trace.SpanID
	for i := 7; i >= 0; i-- {
		spanID[i] = byte(spanNum)
		spanNum >>= 8
	}

	var flags trace.TraceFlags
	if strings.TrimSpace(options) == "o=1" {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), true
}

func formatCloudTraceHeader(info requestctx.TraceInfo) string {
	if info.TraceID == "" || info.SpanID == "" {
		return ""
	}
	spanID, err := trace.SpanIDFromHex(info.SpanID)
	if err != nil {
		return ""
	}
	var num uint64
	for _, b := range spanID {
		num = num<<8 | uint64(b)
	}
	option := 0
	if info.Sampled {
		option = 1
	}
	return fmt.Sprintf("%s/%d;o=%d", info.TraceID, num, option)
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", r.Method),
		attribute.String("url.scheme", scheme),
		attribute.String("url.path", r.URL.Path),
	}
	if r.Host != "" {
		attrs = append(attrs, attribute.String("server.address", r.Host))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", ua))
	}
	return attrs
}
