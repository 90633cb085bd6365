// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

import (
	"sync"
)

// Latch is a one-shot inter-activity cell: one side sets a value, any number
// of participants on any parties await it. Wakers park under a plain mutex
// and fire outside it; this is the one boundary where activities on distinct
// parties rendezvous, so the lock-free slot table does not apply.
type Latch[T any] struct {
	mu     sync.Mutex
	set    bool
	value  T
	wakers []Waker
}

// NewLatch creates an unset latch.
func NewLatch[T any]() *Latch[T] {
	return &Latch[T]{}
}

// Set stores the value and wakes every parked waiter. Panics if already set.
func (l *Latch[T]) Set(v T) {
	if !l.TrySet(v) {
		panic("party: latch set twice")
	}
}

// TrySet stores the value iff the latch is unset, waking every parked
// waiter. Reports whether this call set the latch.
func (l *Latch[T]) TrySet(v T) bool {
	l.mu.Lock()
	if l.set {
		l.mu.Unlock()
		return false
	}
	l.set = true
	l.value = v
	wakers := l.wakers
	l.wakers = nil
	l.mu.Unlock()
	for i := range wakers {
		wakers[i].Wakeup()
	}
	return true
}

// IsSet reports whether the latch holds a value.
func (l *Latch[T]) IsSet() bool {
	l.mu.Lock()
	set := l.set
	l.mu.Unlock()
	return set
}

// Wait returns a promise resolving to the latch value once set. The promise
// parks an owning waker per pending poll; spurious wakes are absorbed by the
// poll contract.
func (l *Latch[T]) Wait() Promise[T] {
	return func(ctx *Context) Poll[T] {
		l.mu.Lock()
		if l.set {
			v := l.value
			l.mu.Unlock()
			return Ready(v)
		}
		l.wakers = append(l.wakers, ctx.MakeOwningWaker())
		l.mu.Unlock()
		return Pending[T]()
	}
}
