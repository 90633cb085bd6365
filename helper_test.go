// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party_test

import (
	"sync"
	"time"

	"code.hybscloud.com/party"
)

// testEngine is shared across tests; its workers outlive the test binary.
var testEngine = party.NewEventEngine(8)

// newTestArena builds an arena carrying the shared engine capability.
func newTestArena() *party.Arena {
	arena := party.NewArena()
	arena.SetContext(party.EventEngineKey, testEngine)
	return arena
}

// notification is a one-shot cross-thread flag, the test-side analogue of a
// latch without a party on the waiting end.
type notification struct {
	once sync.Once
	ch   chan struct{}
}

func newNotification() *notification {
	return &notification{ch: make(chan struct{})}
}

func (n *notification) Notify() {
	n.once.Do(func() { close(n.ch) })
}

func (n *notification) HasFired() bool {
	select {
	case <-n.ch:
		return true
	default:
		return false
	}
}

func (n *notification) Wait() {
	<-n.ch
}

// waitFor polls cond with a deadline, for states reached asynchronously on
// the engine pool.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
