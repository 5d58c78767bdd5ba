package hub

import (
	"sort"
	"strings"

	"github.com/knocktalk/relay/internal/protocol"
)

// visibleProfilesLocked computes the requester's view of the registry: every
// registered profile except those excluded by a block relation in either
// direction. The requester's own profile is included. Results are ordered by
// user id so repeated broadcasts are stable.
func (h *Hub) visibleProfilesLocked(requesterID string) []protocol.Profile {
	visible := make([]protocol.Profile, 0, len(h.users))
	for id, rec := range h.users {
		if id != requesterID && h.isBlockedEitherLocked(requesterID, id) {
			continue
		}
		visible = append(visible, rec.profile)
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].ID < visible[j].ID })
	return visible
}

// presenceListOutboundsLocked builds one presence_list notification per
// registered user. Visibility is pairwise, so the list is recomputed per
// recipient rather than broadcast globally.
func (h *Hub) presenceListOutboundsLocked() []outbound {
	out := make([]outbound, 0, len(h.users))
	for id, rec := range h.users {
		out = append(out, outbound{
			sink:  rec.sink,
			event: protocol.TypePresenceList,
			payload: protocol.PresenceListMsg{
				Users: h.visibleProfilesLocked(id),
			},
		})
	}
	return out
}

// Search filters the requester's visible users by the optional predicates:
// case-insensitive substring on name, exact match on gender and country. The
// predicates combine with AND. Results go only to the caller.
func (h *Hub) Search(connID string, name, gender, country string) {
	h.mu.Lock()

	rec := h.userByConnLocked(connID)
	if rec == nil {
		h.mu.Unlock()
		return
	}

	requesterID := h.byConn[connID]
	visible := h.visibleProfilesLocked(requesterID)

	results := make([]protocol.Profile, 0, len(visible))
	nameLower := strings.ToLower(name)
	for _, p := range visible {
		if name != "" && !strings.Contains(strings.ToLower(p.Name), nameLower) {
			continue
		}
		if gender != "" && p.Gender != gender {
			continue
		}
		if country != "" && p.Country != country {
			continue
		}
		results = append(results, p)
	}

	sink := rec.sink
	h.mu.Unlock()

	sink.Deliver(protocol.TypeSearchResults, protocol.SearchResultsMsg{Users: results})
}
