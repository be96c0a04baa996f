package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

// ReportDroppedRecords logs and counts model records that failed validation at
// the call boundary. received is what the model returned, kept what survived.
func ReportDroppedRecords(ctx context.Context, log *logger.Logger, kind string, received, kept int) {
	dropped := received - kept
	if dropped <= 0 {
		return
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "unknown"
	}
	Current().AddRecordsDropped(kind, dropped)
	if log == nil {
		return
	}
	kv := []interface{}{"kind", kind, "received", received, "kept", kept, "dropped", dropped}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		kv = append(kv, "trace_id", sc.TraceID().String())
	}
	log.Warn("dropped malformed model records", kv...)
}
