package enrichment

import "context"

type requestIDKey struct{}

// WithRequestID stores the originating request id for stage processing.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id carried by the context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// stageFields builds the telemetry fields shared by every stage log
// line, carrying the originating request id when the context has one.
func stageFields(ctx context.Context, documentID string, fields map[string]any) map[string]any {
	if fields == nil {
		fields = make(map[string]any, 2)
	}
	fields["document_id"] = documentID
	if id := RequestIDFromContext(ctx); id != "" {
		fields["request_id"] = id
	}
	return fields
}
