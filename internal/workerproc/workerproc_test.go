package workerproc

import (
	"context"
	"errors"
	"testing"

	"clientdocs-backend/internal/queue"
)

type fakeProcessor struct {
	got queue.Message
	err error
}

func (p *fakeProcessor) Process(_ context.Context, msg queue.Message) error {
	p.got = msg
	return p.err
}

func TestParseMessage(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		_, _, err := ParseMessage("   ")
		var target ErrEmptyBody
		if !errors.As(err, &target) {
			t.Fatalf("expected ErrEmptyBody, got %v", err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		_, meta, err := ParseMessage("{broken")
		var target ErrDecode
		if !errors.As(err, &target) {
			t.Fatalf("expected ErrDecode, got %v", err)
		}
		if meta.BodyLen != len("{broken") || meta.BodySHA == "" {
			t.Fatalf("expected meta populated, got %+v", meta)
		}
	})

	t.Run("missing document id", func(t *testing.T) {
		_, _, err := ParseMessage(`{"stage":"scan","requestId":"r1"}`)
		var target ErrMissingDocumentID
		if !errors.As(err, &target) {
			t.Fatalf("expected ErrMissingDocumentID, got %v", err)
		}
		if target.RequestID != "r1" {
			t.Fatalf("expected request id carried, got %q", target.RequestID)
		}
	})

	t.Run("unknown stage", func(t *testing.T) {
		_, _, err := ParseMessage(`{"documentId":"d1","stage":"transcode"}`)
		var target ErrUnknownStage
		if !errors.As(err, &target) {
			t.Fatalf("expected ErrUnknownStage, got %v", err)
		}
		if target.Stage != "transcode" {
			t.Fatalf("expected stage carried, got %q", target.Stage)
		}
	})

	t.Run("valid", func(t *testing.T) {
		msg, meta, err := ParseMessage(`{"documentId":"d1","stage":"extraction","requestId":"r1"}`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if msg.DocumentID != "d1" || msg.Stage != queue.StageExtraction {
			t.Fatalf("unexpected message %+v", msg)
		}
		if meta.BodyLen == 0 {
			t.Fatalf("expected body length recorded")
		}
	})
}

func TestHandleMessageInvokesProcessor(t *testing.T) {
	processor := &fakeProcessor{}
	body := `{"documentId":"d1","stage":"scan","requestId":"r1"}`

	if err := HandleMessage(context.Background(), processor, body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if processor.got.DocumentID != "d1" || processor.got.Stage != queue.StageScan {
		t.Fatalf("processor received %+v", processor.got)
	}
}

func TestHandleMessageReusesParsedMessage(t *testing.T) {
	processor := &fakeProcessor{}
	decoded := queue.Message{DocumentID: "d2", Stage: queue.StageExtraction, RequestID: "r2"}
	ctx := WithParsedMessage(context.Background(), decoded)

	// Body is stale on purpose; the parsed message wins.
	if err := HandleMessage(ctx, processor, `{"documentId":"other","stage":"scan"}`); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if processor.got.DocumentID != "d2" {
		t.Fatalf("expected parsed message reuse, got %+v", processor.got)
	}
}

func TestHandleMessageWrapsProcessorFailures(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("stage blew up")}
	body := `{"documentId":"d1","stage":"scan","requestId":"r1"}`

	err := HandleMessage(context.Background(), processor, body)
	var target ErrProcess
	if !errors.As(err, &target) {
		t.Fatalf("expected ErrProcess, got %v", err)
	}
	if target.DocumentID != "d1" || target.Stage != queue.StageScan || target.RequestID != "r1" {
		t.Fatalf("unexpected error detail %+v", target)
	}
}

func TestHandleMessageNilProcessor(t *testing.T) {
	if err := HandleMessage(context.Background(), nil, `{}`); err == nil {
		t.Fatalf("expected error for nil processor")
	}
}
