package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestMessageEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		m    *Message
	}{
		{name: "hello", m: NewHello()},
		{name: "sub", m: NewSub("idea:1")},
		{name: "unsub", m: NewUnsub("idea:1")},
		{name: "set", m: NewSet("idea:1", json.RawMessage(`{"title":"Launch"}`), 7)},
		{name: "set_null_value", m: NewSet("idea:1", json.RawMessage(`null`), 8)},
		{name: "del", m: NewDelete("idea:1", 9)},
		{name: "ping", m: NewPing(3)},
		{name: "state", m: NewState("idea:1", json.RawMessage(`["a","b"]`), 42)},
		{name: "ack", m: NewAck(7, 43)},
		{name: "gone", m: NewGone("idea:1")},
		{name: "err", m: NewError(CodeBadMessage, "unknown key")},
		{name: "pong", m: NewPong(3)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.m)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			if got.T != tc.m.T {
				t.Errorf("T = %q, want %q", got.T, tc.m.T)
			}
			if got.K != tc.m.K {
				t.Errorf("K = %q, want %q", got.K, tc.m.K)
			}
			if !bytes.Equal(got.V, tc.m.V) {
				t.Errorf("V = %s, want %s", got.V, tc.m.V)
			}
			if got.Ver != tc.m.Ver {
				t.Errorf("Ver = %d, want %d", got.Ver, tc.m.Ver)
			}
			if got.Seq != tc.m.Seq {
				t.Errorf("Seq = %d, want %d", got.Seq, tc.m.Seq)
			}
			if got.Code != tc.m.Code {
				t.Errorf("Code = %q, want %q", got.Code, tc.m.Code)
			}
		})
	}
}

func TestHelloCarriesProtocolVersion(t *testing.T) {
	m := NewHello()
	if m.Ver != ProtocolVersion {
		t.Errorf("Ver = %d, want %d", m.Ver, ProtocolVersion)
	}

	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.Contains(string(data), `"ver":1`) {
		t.Errorf("encoded hello missing version: %s", data)
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{name: "not_json", data: `{`, want: nil},
		{name: "empty_type", data: `{"k":"idea:1"}`, want: ErrEmptyType},
		{name: "unknown_type", data: `{"t":"patch"}`, want: ErrUnknownType},
		{name: "sub_without_key", data: `{"t":"sub"}`, want: ErrMissingKey},
		{name: "unsub_without_key", data: `{"t":"unsub"}`, want: ErrMissingKey},
		{name: "set_without_key", data: `{"t":"set","v":1}`, want: ErrMissingKey},
		{name: "del_without_key", data: `{"t":"del"}`, want: ErrMissingKey},
		{name: "state_without_key", data: `{"t":"state","v":1}`, want: ErrMissingKey},
		{name: "set_without_value", data: `{"t":"set","k":"idea:1"}`, want: ErrMissingValue},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			if err == nil {
				t.Fatal("Decode() error = nil, want error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("Decode() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDecodeRejectsOversized(t *testing.T) {
	big := make([]byte, MaxMessageSize+1)
	for i := range big {
		big[i] = 'x'
	}
	_, err := Decode(big)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Decode() error = %v, want ErrTooLarge", err)
	}
}

func TestEncodeRejectsOversized(t *testing.T) {
	value, err := json.Marshal(strings.Repeat("x", MaxMessageSize))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	_, err = Encode(NewSet("idea:1", value, 1))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Encode() error = %v, want ErrTooLarge", err)
	}
}

func TestEncodeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		m    *Message
		want error
	}{
		{name: "empty_type", m: &Message{}, want: ErrEmptyType},
		{name: "unknown_type", m: &Message{T: Type("frame")}, want: ErrUnknownType},
		{name: "sub_without_key", m: &Message{T: MsgSub}, want: ErrMissingKey},
		{name: "set_without_value", m: &Message{T: MsgSet, K: "idea:1"}, want: ErrMissingValue},
		{
			name: "key_too_long",
			m:    &Message{T: MsgSub, K: strings.Repeat("k", MaxKeyLength+1)},
			want: ErrKeyTooLong,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.m)
			if !errors.Is(err, tc.want) {
				t.Errorf("Encode() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestTypeValid(t *testing.T) {
	valid := []Type{
		MsgHello, MsgSub, MsgUnsub, MsgSet, MsgDelete, MsgPing,
		MsgState, MsgAck, MsgGone, MsgError, MsgPong,
	}
	for _, typ := range valid {
		if !typ.Valid() {
			t.Errorf("Type(%q).Valid() = false, want true", typ)
		}
	}

	for _, typ := range []Type{"", "patch", "HELLO", "subscribe"} {
		if typ.Valid() {
			t.Errorf("Type(%q).Valid() = true, want false", typ)
		}
	}
}

func TestOmitemptyKeepsWireSparse(t *testing.T) {
	data, err := Encode(NewPing(0))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `{"t":"ping"}`
	if string(data) != want {
		t.Errorf("Encode() = %s, want %s", data, want)
	}
}

func BenchmarkEncodeState(b *testing.B) {
	m := NewState("idea:1", json.RawMessage(`{"title":"Launch","tags":["a","b"]}`), 42)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Encode(m)
	}
}

func BenchmarkDecodeSet(b *testing.B) {
	data, err := Encode(NewSet("idea:1", json.RawMessage(`{"title":"Launch"}`), 7))
	if err != nil {
		b.Fatalf("Encode() error = %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(data)
	}
}
