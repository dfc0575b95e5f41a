package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/optimist-go/optimist/pkg/cache"
	"github.com/optimist-go/optimist/pkg/middleware"
	"github.com/optimist-go/optimist/pkg/protocol"
	"github.com/optimist-go/optimist/pkg/reactive"
)

// Defaults applied by New when the corresponding option is not given.
const (
	DefaultMaxSessions  = 1024
	DefaultSendBuffer   = 64
	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 60 * time.Second
)

// ErrHubClosed is returned when a connection arrives after Close.
var ErrHubClosed = errors.New("optimist: hub closed")

// ErrHubFull is returned when the session limit is reached.
var ErrHubFull = errors.New("optimist: session limit reached")

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMaxSessions caps concurrent sessions. Connections beyond the cap are
// closed with code 1013 (try again later).
func WithMaxSessions(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxSessions = n
		}
	}
}

// WithSendBuffer sets the per-session outbound frame buffer.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithPingInterval sets how often the write loop pings idle connections.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithPongTimeout sets how long a connection may stay silent before the
// read loop gives up on it. Must exceed the ping interval.
func WithPongTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pongTimeout = d
		}
	}
}

// WithCheckOrigin overrides the upgrade origin check. By default
// cross-origin browser connections are rejected.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Hub) {
		h.checkOrigin = fn
	}
}

// Hub accepts WebSocket connections and keeps their view of the cache
// current. Create one per cache with New and mount it as an http.Handler.
type Hub struct {
	cache  *cache.Cache
	logger *slog.Logger
	scope  *reactive.Scope

	upgrader     websocket.Upgrader
	checkOrigin  func(*http.Request) bool
	maxSessions  int
	sendBuffer   int
	pingInterval time.Duration
	pongTimeout  time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	unwatch func()
}

// New creates a Hub feeding from c. The hub subscribes to the whole cache
// immediately; call Close to release the subscription.
func New(c *cache.Cache, opts ...Option) *Hub {
	h := &Hub{
		cache:        c,
		logger:       slog.Default(),
		scope:        reactive.NewScope(nil),
		maxSessions:  DefaultMaxSessions,
		sendBuffer:   DefaultSendBuffer,
		pingInterval: DefaultPingInterval,
		pongTimeout:  DefaultPongTimeout,
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	h.unwatch = c.SubscribeAll(h.fanout)
	return h
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// ServeHTTP upgrades the request to a WebSocket session. Over-limit
// connections are upgraded, told to try again later (1013), and closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s, err := h.adopt(conn)
	if err != nil {
		code := websocket.CloseTryAgainLater
		if errors.Is(err, ErrHubClosed) {
			code = websocket.CloseGoingAway
		}
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(code, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
		h.logger.Warn("session rejected", "remote", r.RemoteAddr, "error", err)
		return
	}

	middleware.RecordSessionStart()
	s.logger.Debug("session connected", "remote", r.RemoteAddr)
	s.start()
}

// adopt registers a new session for conn, enforcing the session cap.
func (h *Hub) adopt(conn *websocket.Conn) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if len(h.sessions) >= h.maxSessions {
		return nil, ErrHubFull
	}

	s := newSession(h, conn)
	h.sessions[s.id] = s
	return s, nil
}

// remove drops a session from the registry. Called from session teardown.
func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.id]
	delete(h.sessions, s.id)
	h.mu.Unlock()

	if ok {
		middleware.RecordSessionEnd()
	}
}

// Close stops the cache feed and tears down every session. Safe to call
// more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.unwatch()
	h.scope.Dispose()
}

// fanout runs on the cache writer's goroutine for every Set and Delete.
// It encodes the change once and queues it on each subscribed session.
func (h *Hub) fanout(ev cache.Event) {
	var msg *protocol.Message
	if ev.Deleted {
		msg = protocol.NewGone(ev.Key)
	} else {
		raw, err := rawValue(ev.Value)
		if err != nil {
			h.logger.Warn("skipping unencodable cache value", "key", ev.Key, "error", err)
			return
		}
		msg = protocol.NewState(ev.Key, raw, ev.Version)
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Warn("skipping oversized cache value", "key", ev.Key, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.wants(ev.Key) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(data)
	}
}

// dispatch handles one decoded client frame. Runs on the session's read
// loop; replies go through the session's send buffer.
func (h *Hub) dispatch(s *Session, m *protocol.Message) {
	switch m.T {
	case protocol.MsgHello:
		if m.Ver != protocol.ProtocolVersion {
			s.reply(protocol.NewErrorf(protocol.CodeVersion,
				"protocol version %d not supported, want %d", m.Ver, protocol.ProtocolVersion))
			s.beginClose(websocket.ClosePolicyViolation, "unsupported protocol version")
			return
		}

	case protocol.MsgSub:
		_, span := middleware.StartKeySpan(s.ctx, "sub", m.K)
		defer span.End()

		s.subscribe(m.K)
		if _, ok := h.cache.Get(m.K); ok {
			h.replyState(s, m.K)
		}

	case protocol.MsgUnsub:
		s.unsubscribe(m.K)

	case protocol.MsgSet:
		_, span := middleware.StartKeySpan(s.ctx, "set", m.K)
		defer span.End()

		if err := h.cache.SetChecked(m.K, json.RawMessage(m.V)); err != nil {
			s.reply(protocol.NewErrorf(protocol.CodeMismatch, "%v", err))
			return
		}
		middleware.RecordKeyUpdate(middleware.SourceWS)
		s.reply(protocol.NewAck(m.Seq, h.cache.Version(m.K)))

	case protocol.MsgDelete:
		_, span := middleware.StartKeySpan(s.ctx, "del", m.K)
		defer span.End()

		h.cache.Delete(m.K)
		middleware.RecordKeyUpdate(middleware.SourceWS)
		s.reply(protocol.NewAck(m.Seq, h.cache.Version(m.K)))

	case protocol.MsgPing:
		s.reply(protocol.NewPong(m.Seq))

	default:
		// state, ack, gone, err, pong originate on the server.
		s.reply(protocol.NewErrorf(protocol.CodeBadMessage, "unexpected %s from client", m.T))
	}
}

// replyState queues the current value of key for s, if the key still holds
// one. The value may have changed since the caller observed it; the freshest
// state wins, which is the contract subscribers rely on.
func (h *Hub) replyState(s *Session, key string) {
	v, ok := h.cache.Get(key)
	if !ok {
		return
	}
	raw, err := rawValue(v)
	if err != nil {
		h.logger.Warn("skipping unencodable cache value", "key", key, "error", err)
		return
	}
	s.reply(protocol.NewState(key, raw, h.cache.Version(key)))
}

// rawValue returns the wire form of a cached value. Values written through
// the sync or REST surfaces are already raw JSON; locally written Go values
// are marshalled.
func rawValue(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
