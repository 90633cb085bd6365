// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

import (
	"code.hybscloud.com/atomix"
)

// CallSpine is the shared owner of one call: a party, the three metadata
// cells, and one message stream per direction. The initiator and handler
// sides hold handles onto the spine, never onto each other, so the two sides
// cannot form a reference cycle.
type CallSpine struct {
	refs  DualRef
	arena *Arena
	party *Party

	clientInitialMD *ClientMetadata
	serverInitialMD *Latch[*ServerMetadata]
	serverTrailing  *Latch[*ServerTrailingMetadata]
	clientToServer  *Pipe[*Message]
	serverToClient  *Pipe[*Message]
	trailingPushed  atomix.Uint32
}

func newCallSpine(md *ClientMetadata, arena *Arena) *CallSpine {
	arena.Ref()
	s := &CallSpine{
		arena:           arena,
		party:           NewParty(arena),
		clientInitialMD: md,
		serverInitialMD: NewLatch[*ServerMetadata](),
		serverTrailing:  NewLatch[*ServerTrailingMetadata](),
		clientToServer:  NewPipe[*Message](),
		serverToClient:  NewPipe[*Message](),
	}
	s.refs.Init(s)
	return s
}

// Orphaned implements [Destructible]: tears the call down, synthesizing
// cancelled trailers if no real ones were pushed, so the trailing observer
// still fires exactly once.
func (s *CallSpine) Orphaned() {
	s.pushServerTrailingMetadata(CancelledServerTrailingMetadata(StatusCancelled, "call orphaned"))
	s.party.Unref()
}

// Destroy implements [Destructible].
func (s *CallSpine) Destroy() {
	s.arena.Unref()
}

// pushServerTrailingMetadata finalizes the call exactly once: resolves the
// initial-metadata cell as absent if still unset, closes both message
// streams, and publishes the trailers.
func (s *CallSpine) pushServerTrailingMetadata(md *ServerTrailingMetadata) {
	if s.trailingPushed.Add(1) != 1 {
		return
	}
	s.serverInitialMD.TrySet(nil)
	s.serverToClient.Close()
	s.clientToServer.Close()
	s.serverTrailing.Set(md)
}

func (s *CallSpine) spawnInfallible(name string, promise Promise[Empty]) {
	Spawn(s.party, name, promise, func(Empty) {})
}

func (s *CallSpine) cancel(code StatusCode, msg string) {
	s.pushServerTrailingMetadata(CancelledServerTrailingMetadata(code, msg))
}

// CallInitiator is the outward-facing side of a spine: it sends the client
// leg and consumes the server leg.
type CallInitiator struct {
	spine *CallSpine
}

// Ref adds a strong ref on the spine.
func (c CallInitiator) Ref() { c.spine.refs.Ref() }

// Unref drops this side's strong ref; the last one tears the call down.
func (c CallInitiator) Unref() { c.spine.refs.Unref() }

// PushMessage resolves true once the message is queued toward the server.
func (c CallInitiator) PushMessage(msg *Message) Promise[bool] {
	return c.spine.clientToServer.Push(msg)
}

// SpawnPushMessage queues the push as a participant on the spine's party.
func (c CallInitiator) SpawnPushMessage(msg *Message) {
	c.spine.spawnInfallible("push_message", Map(c.spine.clientToServer.Push(msg), func(bool) Empty {
		return Empty{}
	}))
}

// FinishSends signals that no more client messages will be pushed.
func (c CallInitiator) FinishSends() {
	c.spine.clientToServer.Close()
}

// SpawnFinishSends defers FinishSends onto the spine's party.
func (c CallInitiator) SpawnFinishSends() {
	c.spine.spawnInfallible("finish_sends", func(*Context) Poll[Empty] {
		c.FinishSends()
		return Ready(Empty{})
	})
}

// PullServerInitialMetadata resolves to the server's initial metadata, or
// nil when the call is trailers-only.
func (c CallInitiator) PullServerInitialMetadata() Promise[*ServerMetadata] {
	return c.spine.serverInitialMD.Wait()
}

// PullMessage resolves to the next server message.
func (c CallInitiator) PullMessage() Promise[Next[*Message]] {
	return c.spine.serverToClient.Pull()
}

// PullServerTrailingMetadata resolves to the call's trailers.
func (c CallInitiator) PullServerTrailingMetadata() Promise[*ServerTrailingMetadata] {
	return c.spine.serverTrailing.Wait()
}

// Cancel finalizes the call with a synthesized status.
func (c CallInitiator) Cancel(code StatusCode, msg string) {
	c.spine.cancel(code, msg)
}

// SpawnInfallible runs promise as a participant on the spine's party.
func (c CallInitiator) SpawnInfallible(name string, promise Promise[Empty]) {
	c.spine.spawnInfallible(name, promise)
}

// UnstartedCallHandler is the server-facing side before the handler begins
// consuming it.
type UnstartedCallHandler struct {
	spine *CallSpine
}

// StartCall begins handling and returns the active handler side.
func (u UnstartedCallHandler) StartCall() CallHandler {
	return CallHandler{spine: u.spine}
}

// Ref adds a strong ref on the spine.
func (u UnstartedCallHandler) Ref() { u.spine.refs.Ref() }

// Unref drops this side's strong ref.
func (u UnstartedCallHandler) Unref() { u.spine.refs.Unref() }

// CallHandler is the server-facing side of a spine: it consumes the client
// leg and produces the server leg.
type CallHandler struct {
	spine *CallSpine
}

// Ref adds a strong ref on the spine.
func (h CallHandler) Ref() { h.spine.refs.Ref() }

// Unref drops this side's strong ref; the last one tears the call down.
func (h CallHandler) Unref() { h.spine.refs.Unref() }

// PullClientInitialMetadata moves the client's initial metadata out of the
// spine. Valid once.
func (h CallHandler) PullClientInitialMetadata() *ClientMetadata {
	md := h.spine.clientInitialMD
	h.spine.clientInitialMD = nil
	return md
}

// PullMessage resolves to the next client message.
func (h CallHandler) PullMessage() Promise[Next[*Message]] {
	return h.spine.clientToServer.Pull()
}

// PushMessage resolves true once the message is queued toward the client.
func (h CallHandler) PushMessage(msg *Message) Promise[bool] {
	return h.spine.serverToClient.Push(msg)
}

// SpawnPushMessage queues the push as a participant on the spine's party.
func (h CallHandler) SpawnPushMessage(msg *Message) {
	h.spine.spawnInfallible("push_message", Map(h.spine.serverToClient.Push(msg), func(bool) Empty {
		return Empty{}
	}))
}

// SpawnPushServerInitialMetadata publishes the server's initial metadata.
func (h CallHandler) SpawnPushServerInitialMetadata(md *ServerMetadata) {
	h.spine.spawnInfallible("push_server_initial_metadata", func(*Context) Poll[Empty] {
		h.spine.serverInitialMD.TrySet(md)
		return Ready(Empty{})
	})
}

// SpawnPushServerTrailingMetadata finalizes the call with real trailers.
func (h CallHandler) SpawnPushServerTrailingMetadata(md *ServerTrailingMetadata) {
	h.spine.spawnInfallible("push_server_trailing_metadata", func(*Context) Poll[Empty] {
		h.spine.pushServerTrailingMetadata(md)
		return Ready(Empty{})
	})
}

// SpawnInfallible runs promise as a participant on the spine's party.
func (h CallHandler) SpawnInfallible(name string, promise Promise[Empty]) {
	h.spine.spawnInfallible(name, promise)
}

// MakeCallPair creates a call on arena and returns its two sides, each
// holding one strong ref on the spine. The arena must carry an [EventEngine]
// capability.
func MakeCallPair(md *ClientMetadata, arena *Arena) (CallInitiator, UnstartedCallHandler) {
	if EventEngineFromArena(arena) == nil {
		panic("party: call arena carries no EventEngine capability")
	}
	spine := newCallSpine(md, arena)
	spine.refs.Ref()
	return CallInitiator{spine: spine}, UnstartedCallHandler{spine: spine}
}

// CancelIfFails cancels the initiator's call when the wrapped promise
// resolves false.
func CancelIfFails(initiator CallInitiator, p Promise[bool]) Promise[bool] {
	return Map(p, func(ok bool) bool {
		if !ok {
			initiator.Cancel(StatusCancelled, "pump failed")
		}
		return ok
	})
}

// ForwardCall couples a received call (handler side) to an outward call
// (initiator side): two pump participants, one per party.
//
// Handler → initiator: every client message in order, then no-more-sends.
// Initiator → handler: server initial metadata (if present) precedes every
// forwarded message, which precede the trailers; the trailing observer runs
// exactly once, before the trailers are forwarded to the handler.
func ForwardCall(handler CallHandler, initiator CallInitiator, onTrailing func(md *ServerTrailingMetadata)) {
	handler.SpawnInfallible("read_messages", Map(
		ForEach(handler.PullMessage, func(msg *Message) Promise[bool] {
			initiator.SpawnPushMessage(msg)
			return Immediate(true)
		}),
		func(bool) Empty {
			initiator.SpawnFinishSends()
			return Empty{}
		},
	))
	initiator.SpawnInfallible("read_the_things", Seq(
		CancelIfFails(initiator, Seq(
			initiator.PullServerInitialMetadata(),
			func(md *ServerMetadata) Promise[bool] {
				has := md != nil
				return If(has, func() Promise[bool] {
					handler.SpawnPushServerInitialMetadata(md)
					return ForEach(initiator.PullMessage, func(msg *Message) Promise[bool] {
						handler.SpawnPushMessage(msg)
						return Immediate(true)
					})
				}, func() Promise[bool] {
					return Immediate(true)
				})
			},
		)),
		func(bool) Promise[Empty] {
			return Map(initiator.PullServerTrailingMetadata(), func(md *ServerTrailingMetadata) Empty {
				onTrailing(md)
				handler.SpawnPushServerTrailingMetadata(md)
				return Empty{}
			})
		},
	))
}
