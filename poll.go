// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

// Empty is the result type of promises run for effect only.
type Empty = struct{}

// Poll is the result of polling a [Promise]: a ready value or pending.
type Poll[T any] struct {
	v     T
	ready bool
}

// Ready wraps a completed value.
func Ready[T any](v T) Poll[T] {
	return Poll[T]{v: v, ready: true}
}

// Pending reports that the promise captured a waker and suspended.
func Pending[T any]() Poll[T] {
	return Poll[T]{}
}

// Done unpacks the poll: (value, true) when ready.
func (p Poll[T]) Done() (T, bool) {
	return p.v, p.ready
}

// Pending reports whether the poll suspended.
func (p Poll[T]) Pending() bool {
	return !p.ready
}

// Promise is a restartable unit of work. A promise suspends only by
// returning [Pending] from its poll; a waker captured during the poll is the
// only way it will be resumed. Ready results are one-shot.
//
// The poll context is valid only for the duration of the call.
type Promise[T any] func(ctx *Context) Poll[T]

// Context is the per-poll view of the executing participant: the party's
// arena and event engine, waker construction bound to the current slot, and
// the cancellation flag.
type Context struct {
	party *Party
	slot  int
}

// Arena returns the owning party's arena.
func (ctx *Context) Arena() *Arena {
	return ctx.party.arena
}

// EventEngine returns the engine capability carried by the party's arena.
func (ctx *Context) EventEngine() EventEngine {
	return ctx.party.engine
}

// Cancelled reports whether the owning party has been orphaned. Promises
// must observe this promptly and convert it into their own terminal outcome.
func (ctx *Context) Cancelled() bool {
	return ctx.party.cancelled()
}

// ForceImmediateRepoll schedules the current participant to be polled again
// on the next turn of the same RunParty invocation, before the lock is
// released. Idempotent within a turn.
func (ctx *Context) ForceImmediateRepoll() {
	ctx.party.sync.ForceImmediateRepoll(ctx.slot)
}

// MakeOwningWaker returns a waker holding a strong ref on the party, bound
// to the currently executing slot and generation. If the party is already
// orphaned (a cancellation poll), the waker downgrades to non-owning and any
// wake through it is a no-op.
func (ctx *Context) MakeOwningWaker() Waker {
	p := ctx.party
	gen := p.generation.Load()
	if !p.refs.RefIfNonZero() {
		p.refs.WeakRef()
		return Waker{party: p, slot: ctx.slot, generation: gen}
	}
	return Waker{party: p, slot: ctx.slot, generation: gen, owning: true}
}

// MakeNonOwningWaker returns a waker holding a weak ref on the party, bound
// to the currently executing slot and generation.
func (ctx *Context) MakeNonOwningWaker() Waker {
	p := ctx.party
	p.refs.WeakRef()
	return Waker{party: p, slot: ctx.slot, generation: p.generation.Load()}
}
