package hub

import (
	"time"

	"github.com/google/uuid"

	"github.com/knocktalk/relay/internal/metrics"
	"github.com/knocktalk/relay/internal/protocol"
)

// Message is a relayed message owned by exactly one session. Messages are
// kept in arrival order and evicted either by the per-session FIFO cap or by
// the expiry sweeper, whichever fires first.
type Message struct {
	ID        string
	SessionID string
	SenderID  string
	Payload   string
	Kind      string
	Metadata  map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time
}

// wire converts the message to its wire representation.
func (m *Message) wire() protocol.MessageData {
	return protocol.MessageData{
		ID:        m.ID,
		SessionID: m.SessionID,
		SenderID:  m.SenderID,
		Payload:   m.Payload,
		Kind:      m.Kind,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt.UnixMilli(),
		ExpiresAt: m.ExpiresAt.UnixMilli(),
	}
}

// MessageSend relays a message into a session. The sender must be registered
// and a participant of a live session; anything else is a silent no-op. On
// success the message is stamped with its expiry, appended to the session's
// store (evicting the oldest entry beyond the cap), delivered to every
// participant including the sender, and acknowledged to the caller.
func (h *Hub) MessageSend(connID string, sessionID string, payload string, kind string, metadata map[string]any) {
	h.mu.Lock()

	sender := h.userByConnLocked(connID)
	if sender == nil {
		h.mu.Unlock()
		return
	}
	senderID := h.byConn[connID]

	sess, ok := h.sessions[sessionID]
	if !ok || !sess.IsParticipant(senderID) {
		h.mu.Unlock()
		return
	}

	now := h.now()
	msg := &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		SenderID:  senderID,
		Payload:   payload,
		Kind:      kind,
		Metadata:  metadata,
		CreatedAt: now,
		ExpiresAt: now.Add(h.cfg.MessageTTL),
	}

	store := append(h.messages[sessionID], msg)
	// FIFO cap: drop the oldest entries regardless of their expiry state.
	if excess := len(store) - h.cfg.MaxSessionMessages; excess > 0 {
		store = append([]*Message(nil), store[excess:]...)
		metrics.MessagesEvicted.Add(float64(excess))
	}
	h.messages[sessionID] = store

	out := []outbound{
		{sink: sender.sink, event: protocol.TypeMessageAck, payload: protocol.MessageAckMsg{
			Success:   true,
			MessageID: msg.ID,
		}},
	}
	delivery := protocol.MessageReceivedMsg{Message: msg.wire()}
	for _, id := range []string{sess.UserA, sess.UserB} {
		if rec, ok := h.users[id]; ok {
			out = append(out, outbound{sink: rec.sink, event: protocol.TypeMessageReceived, payload: delivery})
		}
	}
	h.mu.Unlock()

	metrics.MessagesRelayed.Inc()
	h.flush(out)
}

// MessagesGet returns the session's currently non-expired messages in arrival
// order to the requester. It is a pure read: expired entries are skipped, not
// evicted — eviction stays the sweeper's job so expiry notices fire exactly
// once.
func (h *Hub) MessagesGet(connID string, sessionID string) {
	h.mu.Lock()

	rec := h.userByConnLocked(connID)
	if rec == nil {
		h.mu.Unlock()
		return
	}
	userID := h.byConn[connID]

	sess, ok := h.sessions[sessionID]
	if !ok || !sess.IsParticipant(userID) {
		h.mu.Unlock()
		return
	}

	now := h.now()
	live := make([]protocol.MessageData, 0, len(h.messages[sessionID]))
	for _, m := range h.messages[sessionID] {
		if m.ExpiresAt.After(now) {
			live = append(live, m.wire())
		}
	}

	sink := rec.sink
	h.mu.Unlock()

	sink.Deliver(protocol.TypeMessagesList, protocol.MessagesListMsg{
		SessionID: sessionID,
		Messages:  live,
	})
}
