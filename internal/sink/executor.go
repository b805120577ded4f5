// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// executor is the bounded scheduled-task pool that drives every network
// submission to the destinations: the initial dispatch off a buffer flush,
// every backoff-delayed retry, and the health probers' describe-stream /
// get-queue-url calls. It never blocks store(); submissions always run on
// their own goroutine, gated only by the semaphore.
type executor struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func newExecutor(maxConcurrent int64) *executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	return &executor{sem: semaphore.NewWeighted(maxConcurrent)}
}

// submit runs fn immediately, subject to the concurrency bound.
func (e *executor) submit(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer e.sem.Release(1)
		fn()
	}()
}

// schedule runs fn after delay, still subject to the concurrency bound.
// Used for every backoff-delayed retry computed by the retry scheduler.
func (e *executor) schedule(delay time.Duration, fn func()) {
	e.wg.Add(1)
	time.AfterFunc(delay, func() {
		defer e.wg.Done()
		if err := e.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer e.sem.Release(1)
		fn()
	})
}

// drain waits for all submitted and scheduled work to finish, up to ctx's
// deadline. Work still outstanding when ctx expires is abandoned: its
// result is logged, never reported upward.
func (e *executor) drain(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
