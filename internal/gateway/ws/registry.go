package ws

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/codexdlc/gatewaykit/internal/metrics"
)

const (
	// Close codes on the session plane.
	CloseReplaced = websocket.CloseNormalClosure     // 1000
	ClosePolicy   = websocket.ClosePolicyViolation   // 1008
	CloseInternal = websocket.CloseInternalServerErr // 1011

	writeTimeout = 5 * time.Second
)

// Conn is the transport handle the registry manages. *websocket.Conn
// satisfies it; tests fake it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type session struct {
	conn         Conn
	clientType   string
	accountID    int64
	lastActivity time.Time
	// topics is the optional subscription filter; empty means receive
	// everything.
	topics map[string]struct{}

	writeMu sync.Mutex
}

// Registry is the in-memory map of live WebSocket sessions, keyed by the
// server-minted connection id. Safe for concurrent use by the accept path,
// the idle sweeper, the outbound dispatcher and the broadcaster.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	lg       zerolog.Logger
	now      func() time.Time
}

func NewRegistry(lg zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		lg:       lg.With().Str("component", "ws_registry").Logger(),
		now:      time.Now,
	}
}

// NewConnectionID mints ws_<account_id>_<rand>.
func NewConnectionID(accountID int64) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("ws_%d_%s", accountID, hex.EncodeToString(b))
}

// Connect installs a session. A prior handle under the same id is closed
// with 1000 "replaced" before the map is updated, so at most one handle ever
// owns an id.
func (r *Registry) Connect(conn Conn, id string, accountID int64, clientType string) {
	r.mu.Lock()
	prior, had := r.sessions[id]
	r.sessions[id] = &session{
		conn:         conn,
		clientType:   clientType,
		accountID:    accountID,
		lastActivity: r.now(),
		topics:       make(map[string]struct{}),
	}
	total := len(r.sessions)
	r.mu.Unlock()

	if had {
		r.lg.Warn().Str("connection_id", id).Msg("replacing existing connection")
		closeConn(prior.conn, CloseReplaced, "replaced")
	}
	metrics.WSSessions.Set(float64(total))
	r.lg.Info().Str("connection_id", id).Str("client_type", clientType).Int("total", total).Msg("connection registered")
}

// Disconnect removes the session without touching the transport (the caller
// owns the close).
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	_, had := r.sessions[id]
	delete(r.sessions, id)
	total := len(r.sessions)
	r.mu.Unlock()

	if had {
		metrics.WSSessions.Set(float64(total))
		r.lg.Info().Str("connection_id", id).Int("total", total).Msg("connection removed")
	}
}

// UpdateActivity stamps the idle clock.
func (r *Registry) UpdateActivity(id string) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.lastActivity = r.now()
	}
	r.mu.Unlock()
}

// Send writes a text frame to the session. On transport failure the entry is
// removed and false returned.
func (r *Registry) Send(id string, frame []byte) bool {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := writeText(s, frame); err != nil {
		r.lg.Warn().Err(err).Str("connection_id", id).Msg("send failed; dropping connection")
		r.Disconnect(id)
		_ = s.conn.Close()
		return false
	}
	metrics.WSFramesSent.WithLabelValues("unicast").Inc()
	return true
}

// SendToAccount delivers to the first live session of the account. Returns
// false when no local session matches.
func (r *Registry) SendToAccount(accountID int64, frame []byte) bool {
	r.mu.RLock()
	var id string
	for k, s := range r.sessions {
		if s.accountID == accountID {
			id = k
			break
		}
	}
	r.mu.RUnlock()
	if id == "" {
		return false
	}
	return r.Send(id, frame)
}

// Broadcast fans a frame out to every session, honoring per-session topic
// filters when topic is non-empty. Returns the delivered count.
func (r *Registry) Broadcast(topic string, frame []byte) int {
	r.mu.RLock()
	targets := make([]string, 0, len(r.sessions))
	for id, s := range r.sessions {
		if topic != "" && len(s.topics) > 0 {
			if _, want := s.topics[topic]; !want {
				continue
			}
		}
		targets = append(targets, id)
	}
	r.mu.RUnlock()

	sent := 0
	for _, id := range targets {
		if r.Send(id, frame) {
			sent++
		}
	}
	if sent > 0 {
		metrics.WSFramesSent.WithLabelValues("broadcast").Add(float64(sent))
	}
	return sent
}

// Subscribe adds a topic filter to the session.
func (r *Registry) Subscribe(id, topic string) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.topics[topic] = struct{}{}
	}
	r.mu.Unlock()
}

// Unsubscribe drops a topic filter.
func (r *Registry) Unsubscribe(id, topic string) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		delete(s.topics, topic)
	}
	r.mu.Unlock()
}

// LookupByConn resolves a transport handle back to its connection id.
func (r *Registry) LookupByConn(conn Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, s := range r.sessions {
		if s.conn == conn {
			return id, true
		}
	}
	return "", false
}

// ClientType returns the registered client type, if any.
func (r *Registry) ClientType(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[id]; ok {
		return s.clientType, true
	}
	return "", false
}

// Len reports the live session count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// idleSince returns sessions whose last activity predates the cutoff.
func (r *Registry) idleSince(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, s := range r.sessions {
		if s.lastActivity.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out
}

// CloseAndRemove closes the transport with the given code/reason and drops
// the entry.
func (r *Registry) CloseAndRemove(id string, code int, reason string) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	closeConn(s.conn, code, reason)
	r.Disconnect(id)
}

func writeText(s *session, frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func closeConn(c Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	_ = c.Close()
}
