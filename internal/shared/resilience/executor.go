package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrTimeout marks a collaborator call that exceeded its deadline.
var ErrTimeout = errors.New("collaborator call timed out")

// Executor bounds external collaborator calls with a timeout and a
// per-operation circuit breaker. It never retries: the enrichment
// state machines re-enter at pending/unscanned when a retry is driven
// from outside.
type Executor struct {
	timeout time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// NewExecutor constructs an Executor with the given call timeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Executor{
		timeout:  timeout,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Execute runs fn under the executor's timeout and the operation's breaker.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}

	breaker := e.circuitBreaker(operation)
	_, err := breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		callErr := fn(callCtx)
		if callErr != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", operation, ErrTimeout)
		}
		return nil, callErr
	})
	return err
}

func (e *Executor) circuitBreaker(operation string) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        operation,
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	})
	e.breakers[operation] = cb
	return cb
}
