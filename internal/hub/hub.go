// Package hub implements the relay core: the connection registry, presence
// views, the knock/accept session negotiation, TTL-bounded message relay, the
// background expiry sweeper, and the report/block abuse tracker.
//
// All shared state lives behind a single mutex. Every operation mutates state
// under the lock, collects the notifications it produced, and delivers them
// only after the lock is released, so a slow or dead recipient never blocks
// another client's request.
package hub

import (
	"sync"
	"time"

	"github.com/knocktalk/relay/internal/metrics"
	"github.com/knocktalk/relay/internal/protocol"
)

// Sink is the addressable delivery capability bound to a registered user.
// Deliver is fire-and-forget: implementations must absorb write failures and
// must not block indefinitely. Terminate force-closes the underlying
// connection.
type Sink interface {
	Deliver(event string, payload any)
	Terminate()
}

// Events receives abuse notifications for out-of-band consumers (the audit
// archive). A nil Events on the hub disables publishing.
type Events interface {
	PublishReport(targetID, reporterID string, count int)
	PublishBan(targetID string, reporters []string)
}

// Config holds the tunable parameters of the relay core.
type Config struct {
	MessageTTL         time.Duration // lifetime of a relayed message
	MaxSessionMessages int           // FIFO cap per session, independent of TTL
	ReportThreshold    int           // distinct reporters that trigger a ban
	SweepInterval      time.Duration // period of the expiry sweeper
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MessageTTL:         30 * time.Second,
		MaxSessionMessages: 100,
		ReportThreshold:    3,
		SweepInterval:      5 * time.Second,
	}
}

// userRecord binds a registered user id to its profile and live connection.
type userRecord struct {
	profile protocol.Profile
	sink    Sink
	connID  string
}

// Hub is the single serialized authority over registry, session, message,
// block, and report state.
type Hub struct {
	cfg Config

	mu       sync.Mutex
	users    map[string]*userRecord         // user id -> record
	byConn   map[string]string              // connection id -> user id
	sessions map[string]*Session            // session id -> session
	pairs    map[pairKey]string             // unordered participant pair -> session id
	messages map[string][]*Message          // session id -> ordered message store
	blocks   map[string]map[string]struct{} // blocker -> blocked set
	reports  map[string]map[string]struct{} // target -> distinct reporter set

	now          func() time.Time
	connCount    func() int                       // total live connections, registered or not
	broadcastAll func(event string, payload any) // unfiltered push to every connection
	events       Events
}

// New creates a Hub with the given configuration. connCount and broadcastAll
// are provided by the transport layer; either may be nil, in which case the
// corresponding presence-count behavior is disabled (useful in tests).
func New(cfg Config, connCount func() int, broadcastAll func(event string, payload any), events Events) *Hub {
	if cfg.MessageTTL <= 0 {
		cfg.MessageTTL = DefaultConfig().MessageTTL
	}
	if cfg.MaxSessionMessages <= 0 {
		cfg.MaxSessionMessages = DefaultConfig().MaxSessionMessages
	}
	if cfg.ReportThreshold <= 0 {
		cfg.ReportThreshold = DefaultConfig().ReportThreshold
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}

	return &Hub{
		cfg:          cfg,
		users:        make(map[string]*userRecord),
		byConn:       make(map[string]string),
		sessions:     make(map[string]*Session),
		pairs:        make(map[pairKey]string),
		messages:     make(map[string][]*Message),
		blocks:       make(map[string]map[string]struct{}),
		reports:      make(map[string]map[string]struct{}),
		now:          time.Now,
		connCount:    connCount,
		broadcastAll: broadcastAll,
		events:       events,
	}
}

// pairKey identifies an unordered participant pair. Normalizing the order at
// construction time makes the at-most-one-session-per-pair check a single map
// lookup.
type pairKey struct {
	lo, hi string
}

func newPairKey(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// outbound is a notification collected under the lock and delivered after it
// is released.
type outbound struct {
	sink    Sink
	event   string
	payload any
}

// flush delivers collected notifications. Individual failures are absorbed by
// the sinks themselves; delivery order within one operation is preserved.
func (h *Hub) flush(out []outbound) {
	for _, o := range out {
		o.sink.Deliver(o.event, o.payload)
	}
}

// Disconnect tears down state for a closed connection: the user record is
// removed, every session containing the user is destroyed with both sides
// notified, and presence is rebroadcast. Unknown connection ids (never
// registered, or already evicted by a duplicate registration) are ignored.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()

	userID, ok := h.byConn[connID]
	if !ok {
		h.mu.Unlock()
		return
	}

	delete(h.byConn, connID)
	delete(h.users, userID)

	out := h.closeSessionsWithLocked(userID)
	out = append(out, h.presenceListOutboundsLocked()...)
	metrics.RegisteredUsers.Set(float64(len(h.users)))

	count := h.presenceCountLocked()
	h.mu.Unlock()

	h.pushCount(count)
	h.flush(out)
}

// presenceCountLocked builds the unfiltered presence-count payload. The
// connection total comes from the transport layer and includes connections
// that never registered.
func (h *Hub) presenceCountLocked() protocol.PresenceCountMsg {
	connected := 0
	if h.connCount != nil {
		connected = h.connCount()
	}
	return protocol.PresenceCountMsg{
		Connected:  connected,
		Registered: len(h.users),
	}
}

// pushCount broadcasts a presence-count payload to every live connection.
func (h *Hub) pushCount(count protocol.PresenceCountMsg) {
	if h.broadcastAll != nil {
		h.broadcastAll(protocol.TypePresenceCount, count)
	}
}

// BroadcastPresenceCount pushes the current connection and registration
// totals to every live connection. The transport layer calls this on every
// connect and disconnect event.
func (h *Hub) BroadcastPresenceCount() {
	h.mu.Lock()
	count := h.presenceCountLocked()
	h.mu.Unlock()
	h.pushCount(count)
}

// userByConnLocked resolves the registered user for a connection id, or nil.
func (h *Hub) userByConnLocked(connID string) *userRecord {
	userID, ok := h.byConn[connID]
	if !ok {
		return nil
	}
	return h.users[userID]
}

// isBlockedEitherLocked reports whether either user blocks the other.
func (h *Hub) isBlockedEitherLocked(a, b string) bool {
	if _, ok := h.blocks[a][b]; ok {
		return true
	}
	_, ok := h.blocks[b][a]
	return ok
}
