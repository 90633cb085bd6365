// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party_test

import (
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/party"
)

func TestPartyNoOp(t *testing.T) {
	arena := newTestArena()
	p := party.NewParty(arena)
	p.Unref()
	arena.Unref()
}

func TestSpawnAndRun(t *testing.T) {
	arena := newTestArena()
	p := party.NewParty(arena)
	n := newNotification()
	polls := 0
	party.Spawn(p, "repoll", func(ctx *party.Context) party.Poll[int] {
		polls++
		if polls == 10 {
			return party.Ready(42)
		}
		ctx.ForceImmediateRepoll()
		return party.Pending[int]()
	}, func(v int) {
		if v != 42 {
			t.Errorf("completed with %d, want 42", v)
		}
		n.Notify()
	})
	n.Wait()
	if polls != 10 {
		t.Fatalf("polled %d times, want 10", polls)
	}
	p.Unref()
	arena.Unref()
}

func TestSpawnWaitable(t *testing.T) {
	arena := newTestArena()
	p1 := party.NewParty(arena)
	p2 := party.NewParty(arena)
	n := newNotification()
	latch := party.NewLatch[party.Empty]()

	var wait party.Promise[party.Empty]
	party.Spawn(p1, "p1_main", func(ctx *party.Context) party.Poll[party.Empty] {
		if wait == nil {
			wait = party.SpawnWaitable(p2, "p2_main", latch.Wait())
		}
		return wait(ctx)
	}, func(party.Empty) { n.Notify() })

	if n.HasFired() {
		t.Fatal("completed before the latch was set")
	}
	party.Spawn(p1, "p1_notify_latch", func(*party.Context) party.Poll[party.Empty] {
		latch.Set(party.Empty{})
		return party.Ready(party.Empty{})
	}, func(party.Empty) {})
	n.Wait()
	p1.Unref()
	p2.Unref()
	arena.Unref()
}

func TestSpawnFromSpawn(t *testing.T) {
	arena := newTestArena()
	p := party.NewParty(arena)
	n1 := newNotification()
	n2 := newNotification()
	party.Spawn(p, "outer", func(*party.Context) party.Poll[int] {
		i := 0
		party.Spawn(p, "inner", func(ctx *party.Context) party.Poll[int] {
			i++
			if i == 10 {
				return party.Ready(42)
			}
			ctx.ForceImmediateRepoll()
			return party.Pending[int]()
		}, func(v int) {
			if v != 42 {
				t.Errorf("inner completed with %d, want 42", v)
			}
			n2.Notify()
		})
		return party.Ready(1234)
	}, func(v int) {
		if v != 1234 {
			t.Errorf("outer completed with %d, want 1234", v)
		}
		n1.Notify()
	})
	n1.Wait()
	n2.Wait()
	p.Unref()
	arena.Unref()
}

func TestWakeupOwningWaker(t *testing.T) {
	arena := newTestArena()
	p := party.NewParty(arena)
	var n [10]*notification
	for i := range n {
		n[i] = newNotification()
	}
	complete := newNotification()
	var waker party.Waker
	i := 0
	party.Spawn(p, "waker", func(ctx *party.Context) party.Poll[int] {
		waker = ctx.MakeOwningWaker()
		n[i].Notify()
		i++
		if i == 10 {
			return party.Ready(42)
		}
		return party.Pending[int]()
	}, func(v int) {
		if v != 42 {
			t.Errorf("completed with %d, want 42", v)
		}
		complete.Notify()
	})
	for i := range 10 {
		n[i].Wait()
		waker.Wakeup()
	}
	complete.Wait()
	p.Unref()
	arena.Unref()
}

func TestWakeupNonOwningWaker(t *testing.T) {
	arena := newTestArena()
	p := party.NewParty(arena)
	var n [10]*notification
	for i := range n {
		n[i] = newNotification()
	}
	complete := newNotification()
	var waker party.Waker
	i := 10
	party.Spawn(p, "waker", func(ctx *party.Context) party.Poll[int] {
		waker = ctx.MakeNonOwningWaker()
		i--
		n[9-i].Notify()
		if i == 0 {
			return party.Ready(42)
		}
		return party.Pending[int]()
	}, func(v int) {
		if v != 42 {
			t.Errorf("completed with %d, want 42", v)
		}
		complete.Notify()
	})
	for i := range 9 {
		n[i].Wait()
		if n[i+1].HasFired() {
			t.Fatal("participant ran ahead of its wakeups")
		}
		waker.Wakeup()
	}
	complete.Wait()
	p.Unref()
	arena.Unref()
}

func TestNonOwningWakerAfterOrphan(t *testing.T) {
	arena := newTestArena()
	p := party.NewParty(arena)
	setWaker := newNotification()
	var waker party.Waker
	party.Spawn(p, "pending", func(ctx *party.Context) party.Poll[int] {
		if !setWaker.HasFired() {
			waker = ctx.MakeNonOwningWaker()
			setWaker.Notify()
		}
		return party.Pending[int]()
	}, func(int) {
		t.Error("cancelled participant must not complete")
	})
	setWaker.Wait()
	p.Unref()
	if waker.IsUnwakeable() {
		t.Fatal("waker unwakeable before its wake attempt")
	}
	waker.Wakeup()
	if !waker.IsUnwakeable() {
		t.Fatal("waker still wakeable after waking an orphaned party")
	}
	arena.Unref()
}

func TestDropNonOwningWakerAfterOrphan(t *testing.T) {
	arena := newTestArena()
	p := party.NewParty(arena)
	setWaker := newNotification()
	var waker party.Waker
	party.Spawn(p, "pending", func(ctx *party.Context) party.Poll[int] {
		if !setWaker.HasFired() {
			waker = ctx.MakeNonOwningWaker()
			setWaker.Notify()
		}
		return party.Pending[int]()
	}, func(int) {
		t.Error("cancelled participant must not complete")
	})
	setWaker.Wait()
	p.Unref()
	waker.Drop()
	if !waker.IsUnwakeable() {
		t.Fatal("dropped waker must be unwakeable")
	}
	arena.Unref()
}

func TestCancelDeliversCancelledOutcome(t *testing.T) {
	arena := newTestArena()
	p := party.NewParty(arena)
	polled := newNotification()
	done := newNotification()
	got := 0
	party.Spawn(p, "cooperative", func(ctx *party.Context) party.Poll[int] {
		if ctx.Cancelled() {
			return party.Ready(-1)
		}
		polled.Notify()
		return party.Pending[int]()
	}, func(v int) {
		got = v
		done.Notify()
	})
	polled.Wait()
	p.Unref()
	done.Wait()
	if got != -1 {
		t.Fatalf("cancelled outcome %d, want -1", got)
	}
	arena.Unref()
}

func TestBulkSpawn(t *testing.T) {
	arena := newTestArena()
	p := party.NewParty(arena)
	n1 := newNotification()
	n2 := newNotification()
	sp := party.NewBulkSpawner(p)
	party.SpawnBulk(sp, "spawn1", func(*party.Context) party.Poll[party.Empty] {
		return party.Ready(party.Empty{})
	}, func(party.Empty) { n1.Notify() })
	party.SpawnBulk(sp, "spawn2", func(*party.Context) party.Poll[party.Empty] {
		return party.Ready(party.Empty{})
	}, func(party.Empty) { n2.Notify() })
	for range 5000 {
		if n1.HasFired() || n2.HasFired() {
			t.Fatal("bulk participant visible before Commit")
		}
	}
	sp.Commit()
	n1.Wait()
	n2.Wait()
	p.Unref()
	arena.Unref()
}

// TestNestedWakeup drives three parties through a gated 1..7 ordering
// counter: poll and completion callbacks interleave across parties in a
// fully determined order.
func TestNestedWakeup(t *testing.T) {
	arena := newTestArena()
	p1 := party.NewParty(arena)
	p2 := party.NewParty(arena)
	p3 := party.NewParty(arena)
	p1Done := newNotification()
	done2 := newNotification()
	allDone := newNotification()
	whatsGoingOn := 0
	step := func(expect int) {
		if whatsGoingOn != expect {
			t.Errorf("ordering counter %d, want %d", whatsGoingOn, expect)
		}
		whatsGoingOn = expect + 1
	}
	party.Spawn(p1, "p1", func(*party.Context) party.Poll[party.Empty] {
		step(0)
		party.Spawn(p2, "p2", func(*party.Context) party.Poll[party.Empty] {
			p1Done.Wait()
			step(3)
			return party.Ready(party.Empty{})
		}, func(party.Empty) {
			step(4)
			done2.Notify()
		})
		party.Spawn(p3, "p3", func(*party.Context) party.Poll[party.Empty] {
			done2.Wait()
			step(5)
			return party.Ready(party.Empty{})
		}, func(party.Empty) {
			step(6)
			allDone.Notify()
		})
		step(1)
		return party.Ready(party.Empty{})
	}, func(party.Empty) {
		step(2)
		p1Done.Notify()
	})
	allDone.Wait()
	if whatsGoingOn != 7 {
		t.Fatalf("ordering counter %d, want 7", whatsGoingOn)
	}
	p1.Unref()
	p2.Unref()
	p3.Unref()
	arena.Unref()
}

// promiseNotification is the cross-thread wake rendezvous: a mutex-guarded
// flag whose notifier fires the stored waker, optionally while still holding
// the lock via WakeupAsync.
type promiseNotification struct {
	owning bool

	mu     sync.Mutex
	done   bool
	polled bool
	waker  party.Waker
}

func (pn *promiseNotification) Wait() party.Promise[int] {
	return func(ctx *party.Context) party.Poll[int] {
		pn.mu.Lock()
		defer pn.mu.Unlock()
		if pn.done {
			return party.Ready(42)
		}
		if !pn.polled {
			if pn.owning {
				pn.waker = ctx.MakeOwningWaker()
			} else {
				pn.waker = ctx.MakeNonOwningWaker()
			}
			pn.polled = true
		}
		return party.Pending[int]()
	}
}

func (pn *promiseNotification) Notify() {
	pn.mu.Lock()
	pn.done = true
	waker := pn.waker
	pn.waker = party.Waker{}
	pn.mu.Unlock()
	waker.Wakeup()
}

func (pn *promiseNotification) NotifyUnderLock() {
	pn.mu.Lock()
	pn.done = true
	pn.waker.WakeupAsync()
	pn.mu.Unlock()
}

func stressSpawn(t *testing.T, threads, iterations int, body func(p *party.Party)) {
	t.Helper()
	arena := newTestArena()
	p := party.NewParty(arena)
	var wg sync.WaitGroup
	for range threads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range iterations {
				body(p)
			}
		}()
	}
	wg.Wait()
	p.Unref()
	arena.Unref()
}

func TestThreadStressSpawnWithSleep(t *testing.T) {
	stressSpawn(t, 8, 100, func(p *party.Party) {
		complete := newNotification()
		party.Spawn(p, "stress",
			party.Then(party.Sleep(10*time.Millisecond), party.Immediate(42)),
			func(v int) {
				if v != 42 {
					t.Errorf("completed with %d, want 42", v)
				}
				complete.Notify()
			})
		complete.Wait()
	})
}

func TestThreadStressOwningWaker(t *testing.T) {
	stressSpawn(t, 8, 10000, func(p *party.Party) {
		start := &promiseNotification{owning: true}
		complete := newNotification()
		party.Spawn(p, "stress", start.Wait(), func(v int) {
			if v != 42 {
				t.Errorf("completed with %d, want 42", v)
			}
			complete.Notify()
		})
		start.Notify()
		complete.Wait()
	})
}

func TestThreadStressOwningWakerUnderLock(t *testing.T) {
	stressSpawn(t, 8, 10000, func(p *party.Party) {
		start := &promiseNotification{owning: true}
		complete := newNotification()
		party.Spawn(p, "stress", start.Wait(), func(int) { complete.Notify() })
		start.NotifyUnderLock()
		complete.Wait()
	})
}

func TestThreadStressNonOwningWaker(t *testing.T) {
	stressSpawn(t, 8, 10000, func(p *party.Party) {
		start := &promiseNotification{owning: false}
		complete := newNotification()
		party.Spawn(p, "stress", start.Wait(), func(int) { complete.Notify() })
		start.Notify()
		complete.Wait()
	})
}

func TestThreadStressInnerSpawn(t *testing.T) {
	// Two slots per thread; four threads keep peak occupancy inside the
	// 16-slot table even while freed slots lag their completions.
	stressSpawn(t, 4, 100, func(p *party.Party) {
		innerStart := &promiseNotification{owning: true}
		innerComplete := &promiseNotification{owning: false}
		complete := newNotification()
		party.Spawn(p, "outer", party.Seq(
			func(*party.Context) party.Poll[party.Empty] {
				party.Spawn(p, "inner", innerStart.Wait(), func(int) {
					innerComplete.Notify()
				})
				return party.Ready(party.Empty{})
			},
			func(party.Empty) party.Promise[int] {
				return party.Seq(
					party.Sleep(time.Millisecond),
					func(party.Empty) party.Promise[int] {
						innerStart.Notify()
						return innerComplete.Wait()
					},
				)
			},
		), func(v int) {
			if v != 42 {
				t.Errorf("completed with %d, want 42", v)
			}
			complete.Notify()
		})
		complete.Wait()
	})
}
