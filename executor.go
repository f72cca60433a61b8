package sqlgate

import (
	"context"
	"sync"
)

// Executor serializes access to the single backend connection. The underlying
// driver is not safe for concurrent use and statement ordering matters
// (last-insert-id, transaction boundaries), so every statement funnels through
// one exclusive section.
//
// The section is re-entrant per logical caller: Acquire returns a derived
// context carrying the ownership token, and acquiring again with that context
// succeeds immediately instead of deadlocking. A transaction holds the section
// from Begin to Commit, and statements issued inside it re-enter through the
// transaction's context.
type Executor struct {
	sem chan struct{}

	mu    sync.Mutex
	owner *permit
}

type permit struct {
	depth int
}

type permitKey struct{}

// NewExecutor creates an executor with a free exclusive section.
func NewExecutor() *Executor {
	return &Executor{sem: make(chan struct{}, 1)}
}

// Acquire blocks until the exclusive section is available, or returns the
// context's error if it is cancelled while waiting. On success it returns a
// context that carries ownership of the section and a release func that must
// be called exactly once, typically via defer, on every exit path.
//
// If ctx already carries ownership of the live section, Acquire returns
// immediately with the nesting depth increased; the section is only freed once
// every release has run.
func (e *Executor) Acquire(ctx context.Context) (context.Context, func(), error) {
	if p, ok := ctx.Value(permitKey{}).(*permit); ok {
		e.mu.Lock()
		if e.owner == p {
			p.depth++
			e.mu.Unlock()
			return ctx, e.releaseOnce(p), nil
		}
		// Stale token from a previous acquisition; fall through and wait.
		e.mu.Unlock()
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	p := &permit{depth: 1}
	e.mu.Lock()
	e.owner = p
	e.mu.Unlock()

	return context.WithValue(ctx, permitKey{}, p), e.releaseOnce(p), nil
}

// Held reports whether ctx currently owns the exclusive section.
func (e *Executor) Held(ctx context.Context) bool {
	p, ok := ctx.Value(permitKey{}).(*permit)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner == p
}

func (e *Executor) releaseOnce(p *permit) func() {
	var once sync.Once
	return func() {
		once.Do(func() { e.release(p) })
	}
}

func (e *Executor) release(p *permit) {
	e.mu.Lock()
	if e.owner != p {
		e.mu.Unlock()
		return
	}
	p.depth--
	if p.depth > 0 {
		e.mu.Unlock()
		return
	}
	e.owner = nil
	e.mu.Unlock()
	<-e.sem
}
