package jobs

import (
	"context"
	"sync"
)

// Token is a per-job cooperative cancellation flag. Cancel is idempotent
// and safe to call from any goroutine; the engine boundary observes the
// token between internal steps, so stopping carries a bounded delay.
type Token struct {
	once sync.Once
	done chan struct{}
}

// NewToken creates an unsignaled token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel signals the token. Subsequent calls are no-ops.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the token is cancelled.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Context derives a context cancelled when either the token fires or the
// parent is done. The returned CancelFunc must be called to release the
// bridge goroutine.
func (t *Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
