// Package protocol defines the wire format for key synchronization.
//
// Clients and servers exchange JSON envelope messages over a single
// WebSocket connection. Every message is a Message with a type tag and
// a sparse set of fields; unused fields are omitted from the wire.
//
// # Message Types
//
// Client to server:
//
//   - MsgHello ("hello"): first message after connect, carries the
//     protocol version in Ver
//   - MsgSub ("sub"): subscribe to a key
//   - MsgUnsub ("unsub"): unsubscribe from a key
//   - MsgSet ("set"): write a key, V holds the raw JSON value
//   - MsgDelete ("del"): delete a key
//   - MsgPing ("ping"): application-level heartbeat
//
// Server to client:
//
//   - MsgState ("state"): current value and version of a key
//   - MsgAck ("ack"): confirms a set/del, Seq echoes the client's Seq
//     and Ver carries the assigned version
//   - MsgGone ("gone"): a subscribed key was deleted
//   - MsgError ("err"): request rejected, Code and Msg describe why
//   - MsgPong ("pong"): heartbeat reply
//
// # Validation
//
// Encode and Decode enforce the same rules: a known type tag, a key on
// key-addressed messages, a value on set, and a total size under
// MaxMessageSize. A message that fails validation never reaches the
// hub, and a reply that fails validation is a server bug surfaced at
// encode time.
//
// # Versioning
//
// ProtocolVersion is a single integer. The hello message carries the
// client's version; the server rejects mismatches with CodeVersion
// before any key traffic.
package protocol
