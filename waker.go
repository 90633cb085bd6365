// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

// Waker schedules its participant to be polled again. Wakers are one-shot:
// the first of [Waker.Wakeup], [Waker.WakeupAsync] or [Waker.Drop] consumes
// the handle and releases its party ref; afterwards the waker is unwakeable.
//
// Wakers bound to a prior generation (the party was orphaned after capture)
// are silently dropped at wake time.
type Waker struct {
	party      *Party
	slot       int
	generation uint32
	owning     bool
}

// IsUnwakeable reports whether the handle has been consumed (by Wakeup,
// WakeupAsync or Drop) or was never bound. It does not inspect the party: a
// non-owning waker whose party is already orphaned reports false until its
// first (no-op) wake attempt.
func (w *Waker) IsUnwakeable() bool {
	return w.party == nil
}

// Wakeup schedules the bound participant and consumes the waker. The wake
// may run the party inline on the calling thread; do not call while holding
// a lock ordered before the party lock — use [Waker.WakeupAsync] there.
//
// Waking an orphaned party is a no-op.
func (w *Waker) Wakeup() {
	w.wakeup(false)
}

// WakeupAsync schedules the bound participant and consumes the waker,
// deferring any party run to the event engine's pool. Safe to call while
// holding arbitrary locks.
func (w *Waker) WakeupAsync() {
	w.wakeup(true)
}

func (w *Waker) wakeup(async bool) {
	p := w.party
	if p == nil {
		return
	}
	w.party = nil
	if w.owning {
		if p.generation.Load() == w.generation {
			p.wake(w.slot, async)
		}
		p.refs.Unref()
		return
	}
	if p.refs.RefIfNonZero() {
		if p.generation.Load() == w.generation {
			p.wake(w.slot, async)
		}
		p.refs.Unref()
	}
	p.refs.WeakUnref()
}

// Drop releases the waker's party ref without waking.
func (w *Waker) Drop() {
	p := w.party
	if p == nil {
		return
	}
	w.party = nil
	if w.owning {
		p.refs.Unref()
		return
	}
	p.refs.WeakUnref()
}
