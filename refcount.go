// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

import (
	"code.hybscloud.com/atomix"
)

// Destructible receives the two lifecycle callbacks of a [DualRef].
// Orphaned runs exactly once when the strong count reaches zero and may
// still publish pointers to internal callbacks; Destroy runs exactly once
// when both counts reach zero.
type Destructible interface {
	Orphaned()
	Destroy()
}

// A ref pair packs {strong:u32, weak:u32} into one 64-bit word.
// Strong occupies the high half so both counts move in a single fetch-add.
const (
	strongUnit uint64 = 1 << 32
	weakUnit   uint64 = 1
)

// unrefDelta is weakUnit-strongUnit, expressed via two's-complement negation
// so the compiler's constant-overflow check (which rejects a direct negative
// typed-constant subtraction) doesn't trip on the intentional wraparound.
const unrefDelta uint64 = ^strongUnit + 1 + weakUnit

func strongRefs(pair uint64) uint32 { return uint32(pair >> 32) }
func weakRefs(pair uint64) uint32   { return uint32(pair) }

// DualRef is a lifecycle primitive with two classes of refs: strong refs for
// external callers and weak refs for internal callbacks that must complete
// before destruction. Objects start with strong=1, weak=0.
//
// The strong-to-weak conversion in [DualRef.Unref] is a single fetch-add, so
// Orphaned always runs while at least one weak ref protects the object; no
// separate fence is needed.
type DualRef struct {
	pair atomix.Uint64
	self Destructible
}

// Init binds the callback target and sets the pair to (1, 0).
// Must be called before the ref is shared.
func (r *DualRef) Init(self Destructible) {
	r.self = self
	r.pair.Store(strongUnit)
}

// Ref increments the strong count. The caller must already hold a strong ref.
func (r *DualRef) Ref() {
	pair := r.pair.Add(strongUnit)
	if strongRefs(pair) == 1 {
		panic("party: Ref on object with zero strong refs")
	}
}

// RefIfNonZero increments the strong count iff it is currently non-zero.
// Reports whether a strong ref was taken.
func (r *DualRef) RefIfNonZero() bool {
	pair := r.pair.Load()
	for {
		if strongRefs(pair) == 0 {
			return false
		}
		if r.pair.CompareAndSwap(pair, pair+strongUnit) {
			return true
		}
		pair = r.pair.Load()
	}
}

// WeakRef increments the weak count. The caller must hold some ref.
func (r *DualRef) WeakRef() {
	pair := r.pair.Add(weakUnit)
	if pair == weakUnit {
		panic("party: WeakRef on object with zero refs")
	}
}

// WeakRefIfNonZero increments the weak count iff any ref is held.
// Reports whether a weak ref was taken.
func (r *DualRef) WeakRefIfNonZero() bool {
	pair := r.pair.Load()
	for {
		if pair == 0 {
			return false
		}
		if r.pair.CompareAndSwap(pair, pair+weakUnit) {
			return true
		}
		pair = r.pair.Load()
	}
}

// Unref converts a strong ref into a weak ref in one atomic step, invokes
// Orphaned if this dropped the last strong ref, then drops the weak ref.
func (r *DualRef) Unref() {
	pair := r.pair.Add(unrefDelta)
	strong := strongRefs(pair)
	if strong == ^uint32(0) {
		panic("party: Unref underflow")
	}
	if strong == 0 {
		r.self.Orphaned()
	}
	r.WeakUnref()
}

// WeakUnref drops a weak ref and invokes Destroy when the pair reaches (0, 0)
// via this operation.
func (r *DualRef) WeakUnref() {
	pair := r.pair.Add(^uint64(0))
	if weakRefs(pair) == ^uint32(0) {
		panic("party: WeakUnref underflow")
	}
	if pair == 0 {
		r.self.Destroy()
	}
}
