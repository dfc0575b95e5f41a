package hub

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/optimist-go/optimist/pkg/protocol"
	"github.com/optimist-go/optimist/pkg/reactive"
)

// Session is one WebSocket client. The read loop decodes frames and hands
// them to the hub; the write loop drains the send buffer and pings the
// connection. Teardown runs exactly once through the session's scope,
// whichever loop dies first.
type Session struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	logger *slog.Logger
	scope  *reactive.Scope

	ctx    context.Context
	cancel context.CancelFunc

	send chan []byte
	done chan struct{}

	// closing asks the write loop to flush queued frames, say goodbye with
	// closeMsg and exit. Used for protocol-level rejections; plain close
	// tears the connection down without the courtesy frame.
	closing   chan struct{}
	closeOnce sync.Once
	closeMsg  []byte

	mu   sync.RWMutex
	keys map[string]struct{}
}

func newSession(h *Hub, conn *websocket.Conn) *Session {
	id := generateSessionID()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:      id,
		hub:     h,
		conn:    conn,
		logger:  h.logger.With("session_id", id),
		scope:   reactive.NewScope(h.scope),
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan []byte, h.sendBuffer),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		keys:    make(map[string]struct{}),
	}

	s.scope.OnCleanup(s.teardown)
	return s
}

// ID returns the session's identifier, used in logs.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) start() {
	go s.readLoop()
	go s.writeLoop()
}

// close disposes the session's scope, which runs teardown once.
func (s *Session) close() {
	s.scope.Dispose()
}

// beginClose asks the write loop to flush queued replies, send a close
// frame with the given code and exit. The read loop dies when the write
// loop's teardown closes the connection.
func (s *Session) beginClose(code int, text string) {
	s.closeOnce.Do(func() {
		s.closeMsg = websocket.FormatCloseMessage(code, text)
		close(s.closing)
	})
}

// teardown is the single exit path: it stops both loops, closes the
// connection and unregisters from the hub. Runs via scope disposal, either
// from close or from Hub.Close walking its children.
func (s *Session) teardown() {
	s.cancel()
	close(s.done)
	_ = s.conn.Close()
	s.hub.remove(s)
	s.logger.Debug("session closed")
}

// subscribe adds key to the session's fanout set.
func (s *Session) subscribe(key string) {
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
}

// unsubscribe removes key from the session's fanout set.
func (s *Session) unsubscribe(key string) {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
}

// wants reports whether the session subscribed to key.
func (s *Session) wants(key string) bool {
	s.mu.RLock()
	_, ok := s.keys[key]
	s.mu.RUnlock()
	return ok
}

// reply encodes m and queues it for the write loop.
func (s *Session) reply(m *protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		s.logger.Error("failed to encode reply", "type", m.T, "error", err)
		return
	}
	s.enqueue(data)
}

// enqueue hands an encoded frame to the write loop without blocking. A full
// buffer means the client is not keeping up; the frame is dropped and the
// client re-converges on its next sub.
func (s *Session) enqueue(data []byte) {
	select {
	case <-s.done:
	case s.send <- data:
	default:
		s.logger.Warn("send buffer full, dropping frame")
	}
}

// readLoop pulls frames off the connection until it errors, feeding each
// one to the hub. Any exit disposes the session.
func (s *Session) readLoop() {
	defer s.close()

	s.conn.SetReadLimit(protocol.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.hub.pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.hub.pongTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.hub.pongTimeout))

		s.handleFrame(data)
	}
}

// handleFrame decodes and dispatches one frame. A malformed frame earns an
// err reply; the connection stays open. A panicking handler is logged with
// its stack and answered with an internal error instead of killing the hub.
func (s *Session) handleFrame(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic handling frame",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			s.reply(protocol.NewError(protocol.CodeInternal, "internal error"))
		}
	}()

	m, err := protocol.Decode(data)
	if err != nil {
		s.reply(protocol.NewErrorf(protocol.CodeBadMessage, "%v", err))
		return
	}

	s.hub.dispatch(s, m)
}

// writeLoop owns all writes to the connection: queued frames plus periodic
// pings. Any write error disposes the session.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.hub.pingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.done:
			return

		case <-s.closing:
			s.flush()
			_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = s.conn.WriteMessage(websocket.CloseMessage, s.closeMsg)
			return

		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("websocket ping error", "error", err)
				return
			}
		}
	}
}

// flush writes whatever is already buffered so a goodbye close frame does
// not overtake the error reply that prompted it.
func (s *Session) flush() {
	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// generateSessionID returns 16 random bytes, hex encoded.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("optimist: session id entropy unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}
