package hub

import (
	"context"
	"log"
	"time"

	"github.com/knocktalk/relay/internal/metrics"
	"github.com/knocktalk/relay/internal/protocol"
)

// StartSweeper runs the expiry sweeper until ctx is cancelled. The sweep
// period is fixed and independent of message volume. Each tick takes the same
// lock as client-triggered operations, so a sweep can never race a concurrent
// close or send.
func (h *Hub) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("hub: sweeper stopped")
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// sweep purges expired messages from every session store. Removal from the
// store is itself the one-time trigger: each purged message yields exactly
// one expiry notice per current participant. A store entry whose session was
// closed concurrently is dropped silently with no notification.
func (h *Hub) sweep() {
	h.mu.Lock()

	now := h.now()
	var out []outbound
	expired := 0

	for sessionID, store := range h.messages {
		sess, ok := h.sessions[sessionID]
		if !ok {
			// Orphaned store: the session was closed between ticks.
			delete(h.messages, sessionID)
			continue
		}

		live := store[:0]
		for _, m := range store {
			if m.ExpiresAt.After(now) {
				live = append(live, m)
				continue
			}
			expired++
			payload := protocol.MessageExpiredMsg{SessionID: sessionID, MessageID: m.ID}
			for _, id := range []string{sess.UserA, sess.UserB} {
				if rec, ok := h.users[id]; ok {
					out = append(out, outbound{sink: rec.sink, event: protocol.TypeMessageExpired, payload: payload})
				}
			}
		}
		h.messages[sessionID] = live
	}
	h.mu.Unlock()

	if expired > 0 {
		metrics.MessagesExpired.Add(float64(expired))
	}
	h.flush(out)
}
