// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// pipeCapacity is the bounded capacity for spine message streams. 4 keeps
// the ring within a cache line while amortizing producer-side index refresh.
const pipeCapacity = 4

// Next is one pull from a stream. Ok=false means the stream closed and
// drained; Value is then the zero value.
type Next[T any] struct {
	Value T
	Ok    bool
}

// Pipe is a bounded stream between exactly two activities: one pushing
// participant and one pulling participant, by construction. Transport is a
// lock-free SPSC ring; each end parks one-shot wakers for backpressure and
// data-ready signaling.
//
// Lost-wake safety: an end parks its waker first and retries the queue
// operation after. Any peer progress made before the park is observed by the
// retry; progress made after the park fires the waker. A waker made
// redundant by the retry fires as a spurious wake, which the poll contract
// absorbs.
type Pipe[T any] struct {
	q      lfq.SPSC[T]
	closed atomix.Uint32

	mu          sync.Mutex
	pushWaiters []Waker
	pullWaiters []Waker
}

// NewPipe creates an open pipe.
func NewPipe[T any]() *Pipe[T] {
	p := &Pipe[T]{}
	p.q.Init(pipeCapacity)
	return p
}

// Close marks the pipe closed and wakes both ends. Elements already queued
// remain pullable; pushes fail from now on.
func (p *Pipe[T]) Close() {
	p.closed.Store(1)
	p.wake(&p.pushWaiters)
	p.wake(&p.pullWaiters)
}

// Push returns a promise resolving true once v is queued, or false if the
// pipe closed first.
func (p *Pipe[T]) Push(v T) Promise[bool] {
	return func(ctx *Context) Poll[bool] {
		parked := false
		for {
			if p.closed.Load() != 0 {
				return Ready(false)
			}
			slot := v
			err := p.q.Enqueue(&slot)
			if err == nil {
				p.wake(&p.pullWaiters)
				return Ready(true)
			}
			if !iox.IsWouldBlock(err) {
				panic("party: pipe enqueue failed")
			}
			if parked {
				return Pending[bool]()
			}
			p.park(&p.pushWaiters, ctx)
			parked = true
		}
	}
}

// Pull returns a promise resolving to the next element, or Ok=false once the
// pipe is closed and drained.
func (p *Pipe[T]) Pull() Promise[Next[T]] {
	return func(ctx *Context) Poll[Next[T]] {
		parked := false
		for {
			v, err := p.q.Dequeue()
			if err == nil {
				p.wake(&p.pushWaiters)
				return Ready(Next[T]{Value: v, Ok: true})
			}
			if !iox.IsWouldBlock(err) {
				panic("party: pipe dequeue failed")
			}
			if p.closed.Load() != 0 {
				// No pushes can land after close; one final drain attempt
				// catches an element that raced the first dequeue.
				if v, err := p.q.Dequeue(); err == nil {
					p.wake(&p.pushWaiters)
					return Ready(Next[T]{Value: v, Ok: true})
				}
				return Ready(Next[T]{})
			}
			if parked {
				return Pending[Next[T]]()
			}
			p.park(&p.pullWaiters, ctx)
			parked = true
		}
	}
}

// park registers an owning waker for the calling participant.
func (p *Pipe[T]) park(waiters *[]Waker, ctx *Context) {
	p.mu.Lock()
	*waiters = append(*waiters, ctx.MakeOwningWaker())
	p.mu.Unlock()
}

// wake drains one end's parked wakers and fires them outside the lock.
func (p *Pipe[T]) wake(waiters *[]Waker) {
	p.mu.Lock()
	wakers := *waiters
	*waiters = nil
	p.mu.Unlock()
	for i := range wakers {
		wakers[i].Wakeup()
	}
}
