// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// maxParticipants is the fixed width of a party's slot table.
// 16 leaves the state word with 16 wakeup bits, 16 allocated bits, one lock
// bit, and a 31-bit refcount.
const maxParticipants = 16

// State word layout, low to high: wakeup bits, allocated bits, lock bit,
// refcount. A wakeup bit is only honored while the same allocated bit is set.
const (
	wakeupMask uint64 = (1 << maxParticipants) - 1
	allocShift        = maxParticipants
	allocMask  uint64 = wakeupMask << allocShift
	lockBit    uint64 = 1 << (2 * maxParticipants)
	refShift          = 2*maxParticipants + 1
	refUnit    uint64 = 1 << refShift
)

// Sync is the lock + wake + refcount primitive underlying a [Party].
//
// The refcount tracks in-flight scheduling obligations: every operation that
// may direct the caller to drive [Sync.RunParty] takes one ref, balanced by
// [Sync.Unref] after the drive completes. The party machinery is torn down
// when the count reaches zero, observed either by the Unref that dropped it
// (lock free) or by the RunParty release that found it at zero.
type Sync interface {
	// IncrementRefCount adds one ref.
	IncrementRefCount()
	// Unref drops one ref. Reports whether this call dropped the last ref
	// while the lock was free; the caller must then tear down.
	Unref() bool
	// AddParticipantsAndRef reserves n free slots in strictly increasing
	// order, invokes assign with the reserved indices while they are not yet
	// visible to the scheduler, adds one ref, then publishes the wakeup bits.
	// Reports whether the caller became the runner and must drive RunParty.
	AddParticipantsAndRef(n int, assign func(slots []int)) bool
	// RunParty repeatedly snapshots and clears the wakeup mask, invoking poll
	// for each woken slot in ascending order. A true return from poll frees
	// the slot. Loops while new wakeups were posted during the turn. Reports
	// whether releasing the lock observed the last ref (caller tears down).
	RunParty(poll func(slot int) (done bool)) bool
	// ForceImmediateRepoll re-posts a wakeup for slot from within RunParty.
	// The slot is polled again on the next turn of the same invocation.
	ForceImmediateRepoll(slot int)
	// Wakeup posts a wakeup for slot and adds one ref. Waking a freed slot is
	// a silent no-op (the ref is still taken). Reports whether the caller
	// acquired the lock and must drive RunParty; balance with Unref either
	// way once driving is finished.
	Wakeup(slot int) bool
}

// SyncAtomics is the lock-free [Sync]: all transitions are CAS cycles on a
// single packed word.
type SyncAtomics struct {
	state atomix.Uint64
}

// NewSyncAtomics creates a lock-free sync holding initialRefs refs and no
// participants.
func NewSyncAtomics(initialRefs uint32) *SyncAtomics {
	s := &SyncAtomics{}
	s.state.Store(uint64(initialRefs) << refShift)
	return s
}

// IncrementRefCount implements [Sync].
func (s *SyncAtomics) IncrementRefCount() {
	s.state.Add(refUnit)
}

// Unref implements [Sync]. The locked-last-drop case defers teardown to the
// runner's release.
func (s *SyncAtomics) Unref() bool {
	state := s.state.Add(^uint64(refUnit - 1))
	if state>>refShift == (1<<(64-refShift))-1 {
		panic("party: sync Unref underflow")
	}
	return state&lockBit == 0 && state>>refShift == 0
}

// AddParticipantsAndRef implements [Sync].
func (s *SyncAtomics) AddParticipantsAndRef(n int, assign func(slots []int)) bool {
	var slots [maxParticipants]int
	var reserved uint64
	state := s.state.Load()
	for {
		alloc := (state >> allocShift) & wakeupMask
		reserved = 0
		got := 0
		for slot := 0; slot < maxParticipants && got < n; slot++ {
			bit := uint64(1) << slot
			if alloc&bit == 0 {
				slots[got] = slot
				reserved |= bit
				got++
			}
		}
		if got < n {
			panic("party: no free participant slots")
		}
		next := (state + refUnit) | reserved<<allocShift
		if s.state.CompareAndSwap(state, next) {
			break
		}
		state = s.state.Load()
	}
	assign(slots[:n])
	// Publish the wakeups; become the runner if the lock is free.
	state = s.state.Load()
	for {
		next := state | reserved
		run := state&lockBit == 0
		if run {
			next |= lockBit
		}
		if s.state.CompareAndSwap(state, next) {
			return run
		}
		state = s.state.Load()
	}
}

// RunParty implements [Sync]. The caller must hold the lock.
func (s *SyncAtomics) RunParty(poll func(slot int) bool) bool {
	for {
		// One turn: exchange the wakeup mask to zero, keeping the lock.
		state := s.state.Load()
		var wakeups uint64
		for {
			wakeups = state & wakeupMask
			if s.state.CompareAndSwap(state, state&^wakeupMask) {
				break
			}
			state = s.state.Load()
		}
		alloc := (state >> allocShift) & wakeupMask
		for slot := 0; slot < maxParticipants; slot++ {
			bit := uint64(1) << slot
			if wakeups&bit == 0 || alloc&bit == 0 {
				continue
			}
			if poll(slot) {
				// Free the slot, discarding any wakeup posted during the
				// final poll so it cannot leak into the slot's next tenant.
				st := s.state.Load()
				for !s.state.CompareAndSwap(st, st&^(bit<<allocShift|bit)) {
					st = s.state.Load()
				}
			}
		}
		// Release, unless new wakeups arrived during the turn.
		state = s.state.Load()
		for state&wakeupMask == 0 {
			if state>>refShift == 0 {
				return true
			}
			if s.state.CompareAndSwap(state, state&^lockBit) {
				return false
			}
			state = s.state.Load()
		}
	}
}

// ForceImmediateRepoll implements [Sync]. Idempotent within a turn.
func (s *SyncAtomics) ForceImmediateRepoll(slot int) {
	bit := uint64(1) << slot
	state := s.state.Load()
	for state&bit == 0 {
		if s.state.CompareAndSwap(state, state|bit) {
			return
		}
		state = s.state.Load()
	}
}

// Wakeup implements [Sync].
func (s *SyncAtomics) Wakeup(slot int) bool {
	bit := uint64(1) << slot
	state := s.state.Load()
	for {
		next := state + refUnit
		run := false
		if state&(bit<<allocShift) != 0 {
			next |= bit
			if state&lockBit == 0 {
				next |= lockBit
				run = true
			}
		}
		if s.state.CompareAndSwap(state, next) {
			return run
		}
		state = s.state.Load()
	}
}

// SyncMutex is the mutex-based [Sync]: identical contract, with the state
// fields guarded by a plain mutex instead of packed into an atomic word.
type SyncMutex struct {
	mu        sync.Mutex
	refs      uint32
	wakeups   uint64
	allocated uint64
	locked    bool
}

// NewSyncMutex creates a mutex-based sync holding initialRefs refs and no
// participants.
func NewSyncMutex(initialRefs uint32) *SyncMutex {
	return &SyncMutex{refs: initialRefs}
}

// IncrementRefCount implements [Sync].
func (s *SyncMutex) IncrementRefCount() {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
}

// Unref implements [Sync].
func (s *SyncMutex) Unref() bool {
	s.mu.Lock()
	if s.refs == 0 {
		s.mu.Unlock()
		panic("party: sync Unref underflow")
	}
	s.refs--
	last := s.refs == 0 && !s.locked
	s.mu.Unlock()
	return last
}

// AddParticipantsAndRef implements [Sync].
func (s *SyncMutex) AddParticipantsAndRef(n int, assign func(slots []int)) bool {
	var slots [maxParticipants]int
	s.mu.Lock()
	var reserved uint64
	got := 0
	for slot := 0; slot < maxParticipants && got < n; slot++ {
		bit := uint64(1) << slot
		if s.allocated&bit == 0 {
			slots[got] = slot
			reserved |= bit
			got++
		}
	}
	if got < n {
		s.mu.Unlock()
		panic("party: no free participant slots")
	}
	s.allocated |= reserved
	s.refs++
	s.mu.Unlock()
	assign(slots[:n])
	s.mu.Lock()
	s.wakeups |= reserved
	run := !s.locked
	if run {
		s.locked = true
	}
	s.mu.Unlock()
	return run
}

// RunParty implements [Sync]. The caller must hold the lock.
func (s *SyncMutex) RunParty(poll func(slot int) bool) bool {
	for {
		s.mu.Lock()
		wakeups := s.wakeups
		s.wakeups = 0
		alloc := s.allocated
		s.mu.Unlock()
		for slot := 0; slot < maxParticipants; slot++ {
			bit := uint64(1) << slot
			if wakeups&bit == 0 || alloc&bit == 0 {
				continue
			}
			if poll(slot) {
				s.mu.Lock()
				s.allocated &^= bit
				s.wakeups &^= bit
				s.mu.Unlock()
			}
		}
		s.mu.Lock()
		if s.wakeups != 0 {
			s.mu.Unlock()
			continue
		}
		if s.refs == 0 {
			s.mu.Unlock()
			return true
		}
		s.locked = false
		s.mu.Unlock()
		return false
	}
}

// ForceImmediateRepoll implements [Sync].
func (s *SyncMutex) ForceImmediateRepoll(slot int) {
	s.mu.Lock()
	s.wakeups |= uint64(1) << slot
	s.mu.Unlock()
}

// Wakeup implements [Sync].
func (s *SyncMutex) Wakeup(slot int) bool {
	bit := uint64(1) << slot
	s.mu.Lock()
	s.refs++
	run := false
	if s.allocated&bit != 0 {
		s.wakeups |= bit
		if !s.locked {
			s.locked = true
			run = true
		}
	}
	s.mu.Unlock()
	return run
}
