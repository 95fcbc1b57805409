package imaging

import (
	"context"
	"sync"
)

type guardState uint8

const (
	guardIdle guardState = iota
	guardRunning
	guardDone
)

// InitGuard runs an initialization function at most once and shares its
// result with every caller. Callers that arrive while it is running wait
// for the same run. The result, including a failure, is kept for the
// lifetime of the guard.
type InitGuard struct {
	fn func(context.Context) error

	mu    sync.Mutex
	state guardState
	done  chan struct{}
	err   error
}

// NewInitGuard returns a guard around fn.
func NewInitGuard(fn func(context.Context) error) *InitGuard {
	return &InitGuard{fn: fn, done: make(chan struct{})}
}

// Wait starts the initialization if nobody has and blocks until it has
// finished or ctx is done. Cancelling ctx only stops this caller from
// waiting; the initialization keeps running for the others.
func (g *InitGuard) Wait(ctx context.Context) error {
	g.mu.Lock()
	if g.state == guardIdle {
		g.state = guardRunning
		go g.run(context.WithoutCancel(ctx))
	}
	g.mu.Unlock()

	select {
	case <-g.done:
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the initialization has finished successfully.
func (g *InitGuard) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == guardDone && g.err == nil
}

func (g *InitGuard) run(ctx context.Context) {
	err := g.fn(ctx)

	g.mu.Lock()
	g.err = err
	g.state = guardDone
	g.mu.Unlock()
	close(g.done)
}
