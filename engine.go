// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

import (
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// runQueueCapacity bounds the engine's closure queue. 1024 absorbs wake
// bursts from deep call trees without backpressuring WakeupAsync in practice.
const runQueueCapacity = 1024

// EventEngine is the timer/thread-pool capability parties require from their
// arena: a monotonic-enough clock, timer scheduling, and a pool onto which
// deferred wakes are pushed.
type EventEngine interface {
	// Now returns the engine's current time.
	Now() time.Time
	// Run submits fn to the engine's pool.
	Run(fn func())
	// RunAfter runs fn on the pool once d has elapsed.
	RunAfter(d time.Duration, fn func()) Timer
}

// Timer is a cancellation handle for [EventEngine.RunAfter].
type Timer interface {
	// Cancel stops the timer. Reports whether the callback was prevented
	// from running.
	Cancel() bool
}

// clockFunc is the module-scope time source, settable at most once via
// [SetClock].
var (
	clockSet  atomix.Uint32
	clockFunc = time.Now
)

// SetClock overrides the module-scope time source that every engine's Now
// reads, including engines already running. Settable at most once; a second
// call panics. A call made after an engine has started is not rejected.
func SetClock(fn func() time.Time) {
	if clockSet.Add(1) != 1 {
		panic("party: clock already set")
	}
	clockFunc = fn
}

// PoolEngine is the default [EventEngine]: a fixed worker pool draining a
// bounded lock-free MPMC queue with adaptive backoff, plus stdlib timers
// feeding the same pool.
type PoolEngine struct {
	queue   lfq.Queue[func()]
	stopped atomix.Uint32
}

// NewEventEngine starts an engine with the given number of pool workers.
func NewEventEngine(workers int) *PoolEngine {
	if workers <= 0 {
		panic("party: engine needs at least one worker")
	}
	e := &PoolEngine{
		queue: lfq.NewMPMC[func()](runQueueCapacity),
	}
	for i := 0; i < workers; i++ {
		go e.work()
	}
	return e
}

func (e *PoolEngine) work() {
	var bo iox.Backoff
	for {
		fn, err := e.queue.Dequeue()
		if err != nil {
			if e.stopped.Load() != 0 {
				return
			}
			bo.Wait()
			continue
		}
		bo.Reset()
		fn()
	}
}

// Now implements [EventEngine].
func (e *PoolEngine) Now() time.Time {
	return clockFunc()
}

// Run implements [EventEngine]. Blocks with backoff while the queue is full.
func (e *PoolEngine) Run(fn func()) {
	var bo iox.Backoff
	for {
		err := e.queue.Enqueue(&fn)
		if err == nil {
			return
		}
		if !iox.IsWouldBlock(err) || e.stopped.Load() != 0 {
			panic("party: engine run queue rejected closure")
		}
		bo.Wait()
	}
}

// RunAfter implements [EventEngine].
func (e *PoolEngine) RunAfter(d time.Duration, fn func()) Timer {
	return engineTimer{t: time.AfterFunc(d, func() { e.Run(fn) })}
}

// Shutdown stops the pool workers once the queue drains. Closures submitted
// afterwards, including those of timers that fire later, are still queued and
// may never run once the workers have exited; Run panics only if the queue is
// full after shutdown.
func (e *PoolEngine) Shutdown() {
	e.stopped.Store(1)
}

type engineTimer struct {
	t *time.Timer
}

func (t engineTimer) Cancel() bool {
	return t.t.Stop()
}
