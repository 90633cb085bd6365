// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

// StatusCode is the terminal status carried by server trailing metadata.
type StatusCode uint8

const (
	StatusOK StatusCode = iota
	StatusCancelled
	StatusUnknown
	StatusDeadlineExceeded
	StatusInternal
	StatusUnavailable
)

// String returns the canonical status name.
func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusCancelled:
		return "CANCELLED"
	case StatusUnknown:
		return "UNKNOWN"
	case StatusDeadlineExceeded:
		return "DEADLINE_EXCEEDED"
	case StatusInternal:
		return "INTERNAL"
	case StatusUnavailable:
		return "UNAVAILABLE"
	}
	return "UNKNOWN"
}

// MetadataPair is one header entry.
type MetadataPair struct {
	Key   string
	Value string
}

// Metadata is an ordered key/value header block.
type Metadata struct {
	pairs []MetadataPair
}

// Append adds a pair, preserving insertion order.
func (m *Metadata) Append(key, value string) {
	m.pairs = append(m.pairs, MetadataPair{Key: key, Value: value})
}

// Get returns the first value stored under key.
func (m *Metadata) Get(key string) (string, bool) {
	for i := range m.pairs {
		if m.pairs[i].Key == key {
			return m.pairs[i].Value, true
		}
	}
	return "", false
}

// Len returns the number of pairs.
func (m *Metadata) Len() int {
	return len(m.pairs)
}

// The three metadata handle types are distinct so a header block cannot be
// routed to the wrong leg of a call. Handles are move-only by convention:
// pushing one transfers ownership and the pusher must not touch it again.

// ClientMetadata is the client's initial header block.
type ClientMetadata struct {
	Metadata
}

// ServerMetadata is the server's initial header block.
type ServerMetadata struct {
	Metadata
}

// ServerTrailingMetadata is the server's trailing block: headers plus the
// call's terminal status.
type ServerTrailingMetadata struct {
	Metadata
	Status        StatusCode
	StatusMessage string
}

// CancelledServerTrailingMetadata synthesizes the trailing block delivered
// when a call tears down without real trailers.
func CancelledServerTrailingMetadata(code StatusCode, msg string) *ServerTrailingMetadata {
	return &ServerTrailingMetadata{Status: code, StatusMessage: msg}
}

// MessageFlags carries per-message wire flags.
type MessageFlags uint32

// Message is a move-only handle to one payload with flags.
type Message struct {
	payload []byte
	flags   MessageFlags
}

// NewMessage allocates the handle in arena and copies payload into arena
// storage.
func NewMessage(arena *Arena, payload []byte, flags MessageFlags) *Message {
	buf := arena.AllocBytes(len(payload))
	copy(buf, payload)
	m := NewInArena[Message](arena)
	m.payload = buf
	m.flags = flags
	return m
}

// Payload returns the message bytes.
func (m *Message) Payload() []byte {
	return m.payload
}

// Flags returns the per-message flags.
func (m *Message) Flags() MessageFlags {
	return m.flags
}
