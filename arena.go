// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// arenaChunkSize is the byte capacity of one arena chunk. 4 KiB amortizes
// chunk turnover while keeping small calls on a single chunk.
const arenaChunkSize = 4096

// CapabilityKey names a typed capability stored on an [Arena].
type CapabilityKey string

// EventEngineKey is the capability slot parties assert at construction.
const EventEngineKey CapabilityKey = "event-engine"

// Arena is a shared-ownership allocation context for a call: bump allocation
// for payload bytes, plus contextual key/value storage for capabilities.
//
// Capabilities must be set before the arena is shared; lookups after that
// point are unsynchronized reads.
type Arena struct {
	refs atomix.Uint32
	caps map[CapabilityKey]any

	mu    sync.Mutex
	chunk []byte
	used  int
}

// NewArena creates an arena with one strong ref and no capabilities.
func NewArena() *Arena {
	a := &Arena{
		caps:  make(map[CapabilityKey]any),
		chunk: make([]byte, arenaChunkSize),
	}
	a.refs.Store(1)
	return a
}

// Ref adds a shared owner.
func (a *Arena) Ref() {
	a.refs.Add(1)
}

// Unref drops a shared owner. The arena's storage is reclaimed when the last
// owner releases it.
func (a *Arena) Unref() {
	if a.refs.Add(^uint32(0)) == ^uint32(0) {
		panic("party: arena Unref underflow")
	}
}

// SetContext stores a capability. Must happen before the arena is shared.
func (a *Arena) SetContext(key CapabilityKey, v any) {
	a.caps[key] = v
}

// Context returns the capability stored under key, or nil.
func (a *Arena) Context(key CapabilityKey) any {
	return a.caps[key]
}

// EventEngineFromArena returns the arena's engine capability, or nil.
func EventEngineFromArena(a *Arena) EventEngine {
	e, _ := a.Context(EventEngineKey).(EventEngine)
	return e
}

// NewInArena allocates a zeroed T for use with the arena. Typed allocations
// are individually GC-backed and are not tied to the arena's refcount: chunk
// memory is opaque to the collector, so only raw payload bytes come from the
// bump chunks via [Arena.AllocBytes].
func NewInArena[T any](a *Arena) *T {
	return new(T)
}

// AllocBytes bump-allocates n bytes from the arena. Allocations larger than
// a chunk get a dedicated buffer. Retired chunks stay reachable from the
// slices handed out and are reclaimed with them.
func (a *Arena) AllocBytes(n int) []byte {
	if n > arenaChunkSize {
		return make([]byte, n)
	}
	a.mu.Lock()
	if a.used+n > len(a.chunk) {
		a.chunk = make([]byte, arenaChunkSize)
		a.used = 0
	}
	b := a.chunk[a.used : a.used+n : a.used+n]
	a.used += n
	a.mu.Unlock()
	return b
}
