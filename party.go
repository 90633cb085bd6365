// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

import (
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

// Serial is a monotonically increasing party identifier.
// Each call to NewParty assigns the next serial value.
type Serial = uint32

// counter is the global monotonic counter for party serials.
var counter atomix.Uint32

// nextSerial returns the next monotonically increasing serial.
func nextSerial() Serial {
	return counter.Add(1)
}

// participant is one occupied slot: a type-erased poll returning true when
// the slot must be freed.
type participant struct {
	name string
	poll func(ctx *Context) bool
}

// newParticipant wraps a promise and its completion callback. onDone runs
// after the poll context is torn down, so it may spawn into the same party.
func newParticipant[T any](name string, promise Promise[T], onDone func(T)) *participant {
	return &participant{
		name: name,
		poll: func(ctx *Context) bool {
			v, ok := promise(ctx).Done()
			if !ok {
				return false
			}
			onDone(v)
			return true
		},
	}
}

// Party is a cooperative activity: a bounded set of participants polled in
// slot order under a single lock. Externally parallel, internally serialized:
// N threads may wake or spawn concurrently, but at most one at a time runs
// the party.
//
// Lifecycle is dual-refcounted. Dropping the last strong ref orphans the
// party: new spawns are rejected, every live participant is woken once with
// the cancel flag set, and wakers from the old generation become inert.
// Dropping the last weak ref releases the arena.
type Party struct {
	refs         DualRef
	sync         Sync
	arena        *Arena
	engine       EventEngine
	participants [maxParticipants]atomic.Pointer[participant]
	cancel       atomix.Uint32
	generation   atomix.Uint32
	serial       Serial
}

// NewParty creates a party on arena with the lock-free sync. The arena must
// carry an [EventEngine] capability.
func NewParty(arena *Arena) *Party {
	return newParty(arena, NewSyncAtomics(1))
}

// NewPartyWithSync creates a party on arena with an explicit [Sync]
// implementation holding one initial ref.
func NewPartyWithSync(arena *Arena, sync Sync) *Party {
	return newParty(arena, sync)
}

func newParty(arena *Arena, sync Sync) *Party {
	engine := EventEngineFromArena(arena)
	if engine == nil {
		panic("party: arena carries no EventEngine capability")
	}
	arena.Ref()
	p := &Party{
		sync:   sync,
		arena:  arena,
		engine: engine,
		serial: nextSerial(),
	}
	p.refs.Init(p)
	// The sync machinery holds one weak ref, released when the sync refcount
	// drains to zero.
	p.refs.WeakRef()
	return p
}

// Serial returns the serial number assigned to this party.
func (p *Party) Serial() Serial {
	return p.serial
}

// Ref adds a strong ref.
func (p *Party) Ref() { p.refs.Ref() }

// RefIfNonZero adds a strong ref iff the party is not orphaned.
func (p *Party) RefIfNonZero() bool { return p.refs.RefIfNonZero() }

// Unref drops a strong ref; the last one orphans the party.
func (p *Party) Unref() { p.refs.Unref() }

// WeakRef adds a weak ref.
func (p *Party) WeakRef() { p.refs.WeakRef() }

// WeakUnref drops a weak ref; the last one (with no strong refs) destroys.
func (p *Party) WeakUnref() { p.refs.WeakUnref() }

func (p *Party) cancelled() bool {
	return p.cancel.Load() != 0
}

// Orphaned implements [Destructible]. Runs exactly once, while the sync's
// weak ref still protects the party.
func (p *Party) Orphaned() {
	p.cancel.Store(1)
	p.generation.Add(1)
	// Wake every slot once so live participants observe cancellation. The
	// orphaning thread may be inside a poll of another party; defer.
	for slot := 0; slot < maxParticipants; slot++ {
		if p.participants[slot].Load() == nil {
			continue
		}
		p.wake(slot, true)
	}
	// Drop the construction ref; the machinery tears down once in-flight
	// wakes drain.
	p.syncUnref()
}

// Destroy implements [Destructible].
func (p *Party) Destroy() {
	p.arena.Unref()
}

// Spawn adds one participant running promise; its result is forwarded to
// onDone. The first poll is driven from the engine pool, never inline on the
// calling thread. Spawning into an orphaned party discards the promise
// without running it.
func Spawn[T any](p *Party, name string, promise Promise[T], onDone func(T)) {
	if p.cancelled() {
		return
	}
	part := newParticipant(name, promise, onDone)
	p.refs.WeakRef()
	if p.sync.AddParticipantsAndRef(1, func(slots []int) {
		p.participants[slots[0]].Store(part)
	}) {
		// Never run inline: the caller may be inside another party's poll,
		// and a first poll that blocks would wedge that party too. The
		// engine pool is the neutral thread.
		p.deferRun()
		return
	}
	p.syncUnref()
}

// SpawnWaitable adds one participant like [Spawn] and returns a promise that
// resolves on another party when the participant completes. The returned
// promise satisfies the ordinary poll contract.
func SpawnWaitable[T any](p *Party, name string, promise Promise[T]) Promise[T] {
	latch := NewLatch[T]()
	Spawn(p, name, promise, latch.Set)
	return latch.Wait()
}

// wake posts a wakeup for slot, driving the party inline or on the engine
// pool.
func (p *Party) wake(slot int, async bool) {
	if p.sync.Wakeup(slot) {
		if async {
			p.deferRun()
			return
		}
		p.runParty()
	}
	p.syncUnref()
}

// deferRun hands an owed RunParty (plus its sync ref) to the engine pool.
func (p *Party) deferRun() {
	p.engine.Run(func() {
		p.runParty()
		p.syncUnref()
	})
}

func (p *Party) runParty() {
	if p.sync.RunParty(p.pollOne) {
		p.partyIsOver()
	}
}

func (p *Party) syncUnref() {
	if p.sync.Unref() {
		p.partyIsOver()
	}
}

// partyIsOver drops any participants that never got their cancel poll (a
// spawn that raced the orphan) and releases the machinery's weak ref.
// Reached exactly once, when the sync refcount drains after orphaning; no
// runner is active and no further wakes can arrive.
func (p *Party) partyIsOver() {
	for slot := 0; slot < maxParticipants; slot++ {
		if p.participants[slot].Swap(nil) != nil {
			p.refs.WeakUnref()
		}
	}
	p.refs.WeakUnref()
}

// pollOne runs one participant poll inside RunParty, in slot order.
func (p *Party) pollOne(slot int) bool {
	part := p.participants[slot].Load()
	if part == nil {
		// Freed before this turn started; spurious wake.
		return false
	}
	ctx := Context{party: p, slot: slot}
	if part.poll(&ctx) {
		p.freeSlot(slot)
		return true
	}
	if p.cancelled() {
		// The cancel poll came back Pending: drop the participant without
		// its completion callback. Promises are obliged to convert the
		// cancel flag into a terminal Ready.
		p.freeSlot(slot)
		return true
	}
	return false
}

func (p *Party) freeSlot(slot int) {
	p.participants[slot].Store(nil)
	p.refs.WeakUnref()
}

// BulkSpawner accumulates participants and inserts them with a single
// atomic reservation on [BulkSpawner.Commit]. Until then none of them are
// visible to the scheduler.
type BulkSpawner struct {
	party   *Party
	pending []*participant
}

// NewBulkSpawner creates a bulk spawner for p. Call [BulkSpawner.Commit]
// exactly once when done accumulating.
func NewBulkSpawner(p *Party) *BulkSpawner {
	return &BulkSpawner{party: p}
}

// SpawnBulk accumulates one participant on sp without publishing it.
func SpawnBulk[T any](sp *BulkSpawner, name string, promise Promise[T], onDone func(T)) {
	sp.pending = append(sp.pending, newParticipant(name, promise, onDone))
}

// Commit atomically reserves one slot per accumulated participant (indices
// strictly increasing) and publishes them; the first polls are driven from
// the engine pool.
func (sp *BulkSpawner) Commit() {
	p := sp.party
	pending := sp.pending
	sp.pending = nil
	n := len(pending)
	if n == 0 || p.cancelled() {
		return
	}
	for i := 0; i < n; i++ {
		p.refs.WeakRef()
	}
	if p.sync.AddParticipantsAndRef(n, func(slots []int) {
		for i, slot := range slots {
			p.participants[slot].Store(pending[i])
		}
	}) {
		p.deferRun()
		return
	}
	p.syncUnref()
}
