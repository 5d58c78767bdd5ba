package hub

import (
	"log"

	"github.com/knocktalk/relay/internal/metrics"
	"github.com/knocktalk/relay/internal/protocol"
)

// Report records an abuse report against a registered target. Reports are
// deduplicated per reporter, so repeated reports from the same user never
// move the count. Once the distinct-reporter set reaches the configured
// threshold the target is banned, exactly once; any report against an already
// banned (hence unregistered) id is a no-op.
func (h *Hub) Report(connID string, targetUserID string) {
	h.mu.Lock()

	if h.userByConnLocked(connID) == nil {
		h.mu.Unlock()
		return
	}
	reporterID := h.byConn[connID]

	if _, ok := h.users[targetUserID]; !ok || reporterID == targetUserID {
		h.mu.Unlock()
		return
	}

	set, ok := h.reports[targetUserID]
	if !ok {
		set = make(map[string]struct{})
		h.reports[targetUserID] = set
	}
	if _, dup := set[reporterID]; dup {
		h.mu.Unlock()
		return
	}
	set[reporterID] = struct{}{}
	count := len(set)

	metrics.ReportsTotal.Inc()
	events := h.events

	if count < h.cfg.ReportThreshold {
		h.mu.Unlock()
		if events != nil {
			events.PublishReport(targetUserID, reporterID, count)
		}
		return
	}

	reporters := make([]string, 0, count)
	for id := range set {
		reporters = append(reporters, id)
	}
	out, victim := h.banLocked(targetUserID)
	pcount := h.presenceCountLocked()
	h.mu.Unlock()

	if events != nil {
		events.PublishReport(targetUserID, reporterID, count)
		events.PublishBan(targetUserID, reporters)
	}

	// Termination notice first, then the forced disconnect.
	if victim != nil {
		victim.Deliver(protocol.TypeBanned, protocol.BannedMsg{})
		victim.Terminate()
	}
	h.pushCount(pcount)
	h.flush(out)

	log.Printf("hub: banned user=%s reporters=%d", targetUserID, count)
}

// banLocked executes the ban cascade for a registered target: the user is
// removed from the registry, its report set and block set are deleted, the
// target is scrubbed from every other user's block set, and every session
// containing it is destroyed. It returns the session/presence notifications
// and the banned user's sink (for the termination notice). After the cascade
// no store holds a reference to the banned id.
func (h *Hub) banLocked(targetUserID string) ([]outbound, Sink) {
	rec, ok := h.users[targetUserID]
	if !ok {
		return nil, nil
	}

	delete(h.byConn, rec.connID)
	delete(h.users, targetUserID)
	delete(h.reports, targetUserID)
	delete(h.blocks, targetUserID)
	for _, blocked := range h.blocks {
		delete(blocked, targetUserID)
	}

	out := h.closeSessionsWithLocked(targetUserID)
	out = append(out, h.presenceListOutboundsLocked()...)

	metrics.RegisteredUsers.Set(float64(len(h.users)))
	metrics.BansTotal.Inc()
	return out, rec.sink
}

// Block adds a directional block relation. Any live session between the pair
// is closed immediately with both sides notified, the blocker is
// acknowledged, and presence lists are rebroadcast since visibility changed
// for both parties. There is no unblock operation; a block only disappears
// when one of the parties is banned.
func (h *Hub) Block(connID string, targetUserID string) {
	h.mu.Lock()

	blocker := h.userByConnLocked(connID)
	if blocker == nil {
		h.mu.Unlock()
		return
	}
	blockerID := h.byConn[connID]
	if targetUserID == "" || targetUserID == blockerID {
		h.mu.Unlock()
		return
	}

	set, ok := h.blocks[blockerID]
	if !ok {
		set = make(map[string]struct{})
		h.blocks[blockerID] = set
	}
	set[targetUserID] = struct{}{}

	var out []outbound
	if sessionID, ok := h.pairs[newPairKey(blockerID, targetUserID)]; ok {
		if sess, ok := h.sessions[sessionID]; ok {
			out = append(out, h.destroySessionLocked(sess)...)
		}
	}

	out = append(out, outbound{sink: blocker.sink, event: protocol.TypeBlocked, payload: protocol.BlockedMsg{
		TargetUserID: targetUserID,
	}})
	out = append(out, h.presenceListOutboundsLocked()...)
	h.mu.Unlock()

	h.flush(out)
}
