package hub

import (
	"log"

	"github.com/knocktalk/relay/internal/metrics"
	"github.com/knocktalk/relay/internal/protocol"
)

// Register binds a profile to a live connection. A profile with an empty id
// is dropped. If the id is already online, the previous connection is
// forcibly terminated first so the same user never appears twice in presence.
// On success the caller is acknowledged and presence is rebroadcast.
func (h *Hub) Register(connID string, sink Sink, p protocol.Profile) {
	if p.ID == "" {
		log.Printf("hub: register with empty id conn=%s dropped", connID)
		return
	}

	h.mu.Lock()

	var evicted Sink
	if old, ok := h.users[p.ID]; ok {
		// Ghost handle: unbind it before terminating so the disconnect
		// callback for the old connection becomes a no-op.
		delete(h.byConn, old.connID)
		evicted = old.sink
	}

	h.users[p.ID] = &userRecord{profile: p, sink: sink, connID: connID}
	h.byConn[connID] = p.ID

	out := make([]outbound, 0, len(h.users)*2+2)
	out = append(out, outbound{sink: sink, event: protocol.TypeRegistered, payload: protocol.RegisteredMsg{
		UserID:  p.ID,
		Profile: p,
	}})

	// Announce the arrival to every registered user, then push each one its
	// own block-filtered presence view.
	announce := protocol.UserRegisteredMsg{UserID: p.ID, Profile: p}
	for _, rec := range h.users {
		out = append(out, outbound{sink: rec.sink, event: protocol.TypeUserRegistered, payload: announce})
	}
	out = append(out, h.presenceListOutboundsLocked()...)

	metrics.RegisteredUsers.Set(float64(len(h.users)))
	count := h.presenceCountLocked()
	h.mu.Unlock()

	if evicted != nil {
		evicted.Terminate()
	}
	h.pushCount(count)
	h.flush(out)

	log.Printf("hub: registered user=%s conn=%s", p.ID, connID)
}

// Lookup returns the stored profile for a user id. It is internal plumbing
// for other components and is never exposed as a client operation.
func (h *Hub) Lookup(userID string) (protocol.Profile, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.users[userID]
	if !ok {
		return protocol.Profile{}, false
	}
	return rec.profile, true
}
