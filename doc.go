// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package party provides a cooperative multi-participant activity scheduler,
// a dual-refcount lifecycle primitive, and a call spine that composes two
// cooperating activities into a bidirectional message-pumping call.
//
// A [Party] owns a bounded slot table of participants. Each participant is a
// restartable [Promise] polled under the party's lock; at most one thread at
// a time runs a party, so participant polls are serialized against each other
// while distinct parties execute in parallel.
//
// # Architecture
//
//   - Scheduling: [Sync] tracks {lock, wakeup bits, allocated bits, refcount}.
//     Two interchangeable implementations: [SyncAtomics] (lock-free, packing
//     the state into a single 64-bit word via [code.hybscloud.com/atomix])
//     and [SyncMutex] (the same fields guarded by a mutex).
//   - Lifecycle: [DualRef] fuses a strong and a weak count into one atomic
//     pair. Strong reaching zero orphans (begins shutdown); both reaching
//     zero destroys.
//   - Suspension: a participant suspends only by returning [Pending] from its
//     poll, after capturing a [Waker]. Non-blocking boundaries report
//     [code.hybscloud.com/iox.ErrWouldBlock].
//   - Transport: [Pipe] carries the spine's message streams over bounded
//     lock-free SPSC queues from [code.hybscloud.com/lfq].
//   - Bridging: [FromExpr] hosts a [code.hybscloud.com/kont] computation as a
//     participant, advancing its suspensions with a non-blocking dispatcher.
//
// # API Topologies
//
//   - Spawning: [Spawn], [SpawnWaitable], [NewBulkSpawner], [SpawnBulk].
//   - Waking: [Context.MakeOwningWaker], [Context.MakeNonOwningWaker],
//     [Waker.Wakeup], [Waker.WakeupAsync], [Context.ForceImmediateRepoll].
//   - Composition: [Seq], [TrySeq], [If], [ForEach], [Loop], [Sleep].
//   - Calls: [MakeCallPair], [ForwardCall], [CallInitiator], [CallHandler].
//
// # Example
//
//	arena := NewArena()
//	arena.SetContext(EventEngineKey, NewEventEngine(4))
//	p := NewParty(arena)
//	Spawn(p, "answer", func(ctx *Context) Poll[int] {
//		return Ready(42)
//	}, func(v int) { fmt.Println(v) })
//	p.Unref()
package party
