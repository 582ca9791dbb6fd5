package suggest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is a suggestion request running in the background.
type Task struct {
	ID      string
	Request Request

	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	text string
	err  error
}

// Start runs req against s in a new goroutine. A zero timeout means no
// deadline beyond ctx.
func Start(ctx context.Context, s Suggester, req Request, timeout time.Duration) *Task {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	t := &Task{
		ID:      uuid.NewString(),
		Request: req,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer cancel()

		text, err := s.Suggest(ctx, req)
		if err == nil && ctx.Err() != nil {
			// Finished after cancellation; the result is discarded
			err = ctx.Err()
		}

		t.mu.Lock()
		if err != nil {
			t.err = err
		} else {
			t.text = text
		}
		t.mu.Unlock()
	}()

	return t
}

// Cancel stops the request. The task then reports context.Canceled and no text.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (string, error) {
	select {
	case <-t.done:
		return t.Result()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Result returns the suggestion. Before the task finishes it returns
// ("", nil); check Done first.
func (t *Task) Result() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text, t.err
}
