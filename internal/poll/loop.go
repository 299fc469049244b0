// Package poll runs fixed-interval refresh loops bound to an explicit
// Subscription handle, so no timer outlives the consumer that started it.
package poll

import (
	"context"
	"sync"
	"time"
)

// Loop calls tick immediately and then every interval until ctx is done.
// Ticks are serialized: a slow tick delays the next one rather than
// overlapping it.
func Loop(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// Subscription is the handle to a running loop.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start runs Loop in a goroutine derived from parent and returns its handle.
func Start(parent context.Context, interval time.Duration, tick func(ctx context.Context)) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	s := &Subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		_ = Loop(ctx, interval, tick)
	}()
	return s
}

// Cancel stops the loop, aborts any in-flight tick through its context and
// waits for the goroutine to return. It is safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed once the loop goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
