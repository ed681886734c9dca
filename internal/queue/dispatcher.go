package queue

import (
	"context"
	"fmt"

	"clientdocs-backend/internal/shared/telemetry"
)

// Handler processes a single queue message.
type Handler func(ctx context.Context, msg Message) error

// LocalDispatcher is an in-process queue client used when no durable
// queue is configured. Each message runs on its own goroutine detached
// from the caller's context, mirroring the fire-and-forget semantics of
// a real queue worker; handler errors are logged, never returned to the
// sender.
type LocalDispatcher struct {
	handler Handler
}

// NewLocalDispatcher constructs a LocalDispatcher around the given handler.
func NewLocalDispatcher(handler Handler) (*LocalDispatcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("dispatcher handler is required")
	}
	return &LocalDispatcher{handler: handler}, nil
}

// Send schedules the message for asynchronous processing.
func (d *LocalDispatcher) Send(ctx context.Context, msg Message) error {
	_ = ctx
	go func() {
		if err := d.handler(context.Background(), msg); err != nil {
			telemetry.Error("dispatch.handler_failed", map[string]any{
				"document_id": msg.DocumentID,
				"stage":       msg.Stage,
				"request_id":  msg.RequestID,
				"err":         err.Error(),
			})
		}
	}()
	return nil
}

var _ Client = (*LocalDispatcher)(nil)
