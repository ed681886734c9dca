package enrichment

import (
	"context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	if got := RequestIDFromContext(ctx); got != "req-42" {
		t.Fatalf("expected req-42, got %q", got)
	}

	// An empty id is not stored.
	if got := RequestIDFromContext(WithRequestID(context.Background(), "")); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty id from bare context, got %q", got)
	}
}

func TestStageFieldsCarryRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")

	fields := stageFields(ctx, "doc-1", map[string]any{"verdict": "clean"})
	if fields["document_id"] != "doc-1" {
		t.Fatalf("expected document id, got %v", fields["document_id"])
	}
	if fields["request_id"] != "req-42" {
		t.Fatalf("expected request id, got %v", fields["request_id"])
	}
	if fields["verdict"] != "clean" {
		t.Fatalf("expected caller fields preserved, got %v", fields["verdict"])
	}

	// Without an id in the context the key is absent, not empty.
	bare := stageFields(context.Background(), "doc-1", nil)
	if _, ok := bare["request_id"]; ok {
		t.Fatalf("expected no request_id key on bare context")
	}
}
