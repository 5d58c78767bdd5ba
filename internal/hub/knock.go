package hub

import (
	"log"

	"github.com/google/uuid"

	"github.com/knocktalk/relay/internal/metrics"
	"github.com/knocktalk/relay/internal/protocol"
)

// Session is an ephemeral one-to-one channel between exactly two users. It is
// created only through a successful knock/accept and destroyed explicitly or
// by disconnect, block, or ban of either participant.
type Session struct {
	ID    string
	UserA string
	UserB string
}

// Partner returns the other participant's user id, or "" if userID is not a
// participant.
func (s *Session) Partner(userID string) string {
	if userID == s.UserA {
		return s.UserB
	}
	if userID == s.UserB {
		return s.UserA
	}
	return ""
}

// IsParticipant reports whether userID is one of the two participants.
func (s *Session) IsParticipant(userID string) bool {
	return userID == s.UserA || userID == s.UserB
}

// KnockSend emits a knock notice to the target and an acknowledgment to the
// sender. A knock is purely transient: nothing is stored, and a knock that is
// never accepted is silently abandoned. The operation is a no-op when either
// party is unregistered, when the sender targets themself, or when a block
// relation exists in either direction.
func (h *Hub) KnockSend(connID string, targetUserID string) {
	h.mu.Lock()

	from := h.userByConnLocked(connID)
	if from == nil {
		h.mu.Unlock()
		return
	}
	fromID := h.byConn[connID]

	target, ok := h.users[targetUserID]
	if !ok || targetUserID == fromID || h.isBlockedEitherLocked(fromID, targetUserID) {
		h.mu.Unlock()
		return
	}

	out := []outbound{
		{sink: target.sink, event: protocol.TypeKnockReceived, payload: protocol.KnockReceivedMsg{
			KnockID:     uuid.New().String(),
			FromUserID:  fromID,
			FromProfile: from.profile,
		}},
		{sink: from.sink, event: protocol.TypeKnockSent, payload: protocol.KnockSentMsg{
			TargetUserID: targetUserID,
		}},
	}
	h.mu.Unlock()

	metrics.KnocksTotal.Inc()
	h.flush(out)
}

// KnockAccept creates the session between the accepter and the original
// knocker. This is the only operation that creates a Session. It is a no-op
// when either party is unregistered, when a block relation exists in either
// direction, or when a session between the pair already exists — the latter
// guards against duplicate or racing accepts.
func (h *Hub) KnockAccept(connID string, fromUserID string) {
	h.mu.Lock()

	accepter := h.userByConnLocked(connID)
	if accepter == nil {
		h.mu.Unlock()
		return
	}
	accepterID := h.byConn[connID]

	knocker, ok := h.users[fromUserID]
	if !ok || fromUserID == accepterID || h.isBlockedEitherLocked(accepterID, fromUserID) {
		h.mu.Unlock()
		return
	}

	pk := newPairKey(accepterID, fromUserID)
	if _, exists := h.pairs[pk]; exists {
		h.mu.Unlock()
		return
	}

	sess := &Session{
		ID:    uuid.New().String(),
		UserA: fromUserID,
		UserB: accepterID,
	}
	h.sessions[sess.ID] = sess
	h.pairs[pk] = sess.ID

	knockerProfile := knocker.profile
	out := []outbound{
		{sink: accepter.sink, event: protocol.TypeSessionCreated, payload: protocol.SessionCreatedMsg{
			SessionID:      sess.ID,
			PartnerID:      fromUserID,
			PartnerProfile: &knockerProfile,
		}},
		{sink: knocker.sink, event: protocol.TypeKnockAccepted, payload: protocol.KnockAcceptedMsg{
			SessionID:      sess.ID,
			PartnerID:      accepterID,
			PartnerProfile: accepter.profile,
		}},
	}

	metrics.ActiveSessions.Set(float64(len(h.sessions)))
	h.mu.Unlock()

	h.flush(out)
	log.Printf("hub: session created id=%s a=%s b=%s", sess.ID, fromUserID, accepterID)
}

// SessionJoin returns the session descriptor to a reconnecting participant.
// It creates nothing and notifies nobody else; non-participants get no
// response at all.
func (h *Hub) SessionJoin(connID string, sessionID string) {
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

	payload := protocol.SessionCreatedMsg{
		SessionID:    sess.ID,
		Participants: []string{sess.UserA, sess.UserB},
	}
	sink := rec.sink
	h.mu.Unlock()

	sink.Deliver(protocol.TypeSessionCreated, payload)
}

// SessionClose destroys a session at a participant's request: both sides are
// notified and the buffered messages are discarded.
func (h *Hub) SessionClose(connID string, sessionID string) {
	h.mu.Lock()

	if h.userByConnLocked(connID) == nil {
		h.mu.Unlock()
		return
	}
	userID := h.byConn[connID]

	sess, ok := h.sessions[sessionID]
	if !ok || !sess.IsParticipant(userID) {
		h.mu.Unlock()
		return
	}

	out := h.destroySessionLocked(sess)
	h.mu.Unlock()

	h.flush(out)
}

// destroySessionLocked removes a session, its pair index entry, and its
// message store, and builds a session_closed notification for each
// participant that is still registered.
func (h *Hub) destroySessionLocked(sess *Session) []outbound {
	delete(h.sessions, sess.ID)
	delete(h.pairs, newPairKey(sess.UserA, sess.UserB))
	delete(h.messages, sess.ID)

	payload := protocol.SessionClosedMsg{SessionID: sess.ID}
	var out []outbound
	for _, id := range []string{sess.UserA, sess.UserB} {
		if rec, ok := h.users[id]; ok {
			out = append(out, outbound{sink: rec.sink, event: protocol.TypeSessionClosed, payload: payload})
		}
	}

	metrics.ActiveSessions.Set(float64(len(h.sessions)))
	return out
}

// closeSessionsWithLocked destroys every session containing userID and
// returns the accumulated notifications.
func (h *Hub) closeSessionsWithLocked(userID string) []outbound {
	var out []outbound
	for _, sess := range h.sessions {
		if sess.IsParticipant(userID) {
			out = append(out, h.destroySessionLocked(sess)...)
		}
	}
	return out
}
