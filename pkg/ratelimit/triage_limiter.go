// Package ratelimit bounds concurrent calls to a shared backend.
package ratelimit

import (
	"context"
)

// Limiter is a context-aware semaphore. A model server with a fixed number
// of slots queues excess requests anyway; waiting here keeps the per-call
// timeout from running while a request sits in the server's queue.
type Limiter struct {
	semaphore chan struct{}
}

// NewLimiter allows maxConcurrent holders at once; <= 0 means unlimited.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		return &Limiter{}
	}
	return &Limiter{semaphore: make(chan struct{}, maxConcurrent)}
}

// Acquire blocks until a slot is free or ctx is done. The returned release
// function must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l == nil || l.semaphore == nil {
		return func() {}, nil
	}

	select {
	case l.semaphore <- struct{}{}:
		return func() { <-l.semaphore }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InUse returns the number of held slots.
func (l *Limiter) InUse() int {
	if l == nil {
		return 0
	}
	return len(l.semaphore)
}
