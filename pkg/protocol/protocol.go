package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is the current wire protocol version. A hello message
// carries it in Ver; mismatches are rejected before any key traffic.
const ProtocolVersion uint64 = 1

// Size limits for inbound and outbound messages.
const (
	// MaxMessageSize limits the encoded size of a single message.
	// Values are arbitrary client JSON, so this bounds memory per read.
	MaxMessageSize = 64 << 10

	// MaxKeyLength limits the length of a key on the wire.
	MaxKeyLength = 512
)

// Type tags a message on the wire.
type Type string

// Client to server message types.
const (
	MsgHello  Type = "hello"
	MsgSub    Type = "sub"
	MsgUnsub  Type = "unsub"
	MsgSet    Type = "set"
	MsgDelete Type = "del"
	MsgPing   Type = "ping"
)

// Server to client message types.
const (
	MsgState Type = "state"
	MsgAck   Type = "ack"
	MsgGone  Type = "gone"
	MsgError Type = "err"
	MsgPong  Type = "pong"
)

// Valid reports whether t is a known message type.
func (t Type) Valid() bool {
	switch t {
	case MsgHello, MsgSub, MsgUnsub, MsgSet, MsgDelete, MsgPing,
		MsgState, MsgAck, MsgGone, MsgError, MsgPong:
		return true
	}
	return false
}

// String returns the wire tag.
func (t Type) String() string { return string(t) }

// Error codes carried by MsgError messages.
const (
	CodeBadMessage = "bad_message"   // malformed or invalid message
	CodeVersion    = "bad_version"   // hello version mismatch
	CodeTooLarge   = "too_large"     // message over MaxMessageSize
	CodeMismatch   = "type_mismatch" // value conflicts with the key's bound type
	CodeBusy       = "busy"          // server at session capacity
	CodeInternal   = "internal"      // unexpected server failure
)

// Validation errors returned by Encode and Decode.
var (
	ErrTooLarge     = errors.New("optimist: message exceeds size limit")
	ErrEmptyType    = errors.New("optimist: message has no type")
	ErrUnknownType  = errors.New("optimist: unknown message type")
	ErrMissingKey   = errors.New("optimist: message requires a key")
	ErrKeyTooLong   = errors.New("optimist: key exceeds length limit")
	ErrMissingValue = errors.New("optimist: set requires a value")
)

// Message is the JSON envelope for every frame on the sync socket.
// Fields are sparse; which ones are set depends on T.
type Message struct {
	T    Type            `json:"t"`
	K    string          `json:"k,omitempty"`
	V    json.RawMessage `json:"v,omitempty"`
	Ver  uint64          `json:"ver,omitempty"`
	Seq  uint64          `json:"seq,omitempty"`
	Code string          `json:"code,omitempty"`
	Msg  string          `json:"msg,omitempty"`
}

// Validate checks the envelope against the rules in the package doc.
func (m *Message) Validate() error {
	if m.T == "" {
		return ErrEmptyType
	}
	if !m.T.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, string(m.T))
	}
	if len(m.K) > MaxKeyLength {
		return fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(m.K))
	}
	switch m.T {
	case MsgSub, MsgUnsub, MsgSet, MsgDelete, MsgState, MsgGone:
		if m.K == "" {
			return fmt.Errorf("%w: %s", ErrMissingKey, m.T)
		}
	}
	if m.T == MsgSet && len(m.V) == 0 {
		return ErrMissingValue
	}
	return nil
}

// Encode validates m and marshals it to wire bytes.
func Encode(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("optimist: encode %s message: %w", m.T, err)
	}
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	return data, nil
}

// Decode parses wire bytes into a validated Message. The size limit is
// checked before any allocation-heavy work.
func Decode(data []byte) (*Message, error) {
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("optimist: decode message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewHello creates the connection-opening message.
func NewHello() *Message {
	return &Message{T: MsgHello, Ver: ProtocolVersion}
}

// NewSub creates a subscription request for key.
func NewSub(key string) *Message {
	return &Message{T: MsgSub, K: key}
}

// NewUnsub creates an unsubscribe request for key.
func NewUnsub(key string) *Message {
	return &Message{T: MsgUnsub, K: key}
}

// NewSet creates an optimistic write of value to key. Seq is echoed in
// the server's ack so the client can match replies to requests.
func NewSet(key string, value json.RawMessage, seq uint64) *Message {
	return &Message{T: MsgSet, K: key, V: value, Seq: seq}
}

// NewDelete creates a delete request for key.
func NewDelete(key string, seq uint64) *Message {
	return &Message{T: MsgDelete, K: key, Seq: seq}
}

// NewPing creates an application-level heartbeat.
func NewPing(seq uint64) *Message {
	return &Message{T: MsgPing, Seq: seq}
}

// NewState creates a snapshot of key at version ver.
func NewState(key string, value json.RawMessage, ver uint64) *Message {
	return &Message{T: MsgState, K: key, V: value, Ver: ver}
}

// NewAck confirms the client request with sequence seq; ver is the
// version the write was assigned.
func NewAck(seq, ver uint64) *Message {
	return &Message{T: MsgAck, Seq: seq, Ver: ver}
}

// NewGone reports that a subscribed key was deleted.
func NewGone(key string) *Message {
	return &Message{T: MsgGone, K: key}
}

// NewError creates an error reply.
func NewError(code, msg string) *Message {
	return &Message{T: MsgError, Code: code, Msg: msg}
}

// NewErrorf creates an error reply with a formatted message.
func NewErrorf(code, format string, args ...any) *Message {
	return &Message{T: MsgError, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// NewPong creates a heartbeat reply echoing seq.
func NewPong(seq uint64) *Message {
	return &Message{T: MsgPong, Seq: seq}
}
