package chat

import (
	"sort"
	"strings"
	"time"

	"livechat-console/internal/domain"
)

// Reconciler keeps the admin session list ordered by most recent activity.
// Every mutation installs a new slice; returned slices are never written
// again, so callers may keep them.
type Reconciler struct {
	now      func() time.Time
	sessions []domain.Session
}

func NewReconciler(now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{now: now}
}

// Load installs a bulk fetch. Sessions already known from live events keep
// the fresher of the two copies, and sessions the fetch did not return are
// kept.
func (r *Reconciler) Load(bulk []domain.Session) []domain.Session {
	live := make(map[string]domain.Session, len(r.sessions))
	for _, s := range r.sessions {
		live[s.ID] = s
	}

	seen := make(map[string]bool, len(bulk)+len(r.sessions))
	merged := make([]domain.Session, 0, len(bulk)+len(r.sessions))
	for _, s := range bulk {
		if s.ID == "" || seen[s.ID] {
			continue
		}
		if cur, ok := live[s.ID]; ok && cur.LastUpdated.After(s.LastUpdated) {
			s.LastMessage = cur.LastMessage
			s.LastUpdated = cur.LastUpdated
		}
		seen[s.ID] = true
		merged = append(merged, s)
	}
	for _, s := range r.sessions {
		if !seen[s.ID] {
			seen[s.ID] = true
			merged = append(merged, s)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].LastUpdated.After(merged[j].LastUpdated)
	})
	r.sessions = merged
	return merged
}

// Merge applies an inbound event: the session moves to the front with the
// event's preview and timestamp, or is created there if unknown.
func (r *Reconciler) Merge(ev domain.Event) []domain.Session {
	if ev.SessionID == "" {
		return r.sessions
	}
	at := ev.CreatedAt
	if at.IsZero() {
		at = r.now()
	}

	idx := r.index(ev.SessionID)
	next := make([]domain.Session, 0, len(r.sessions)+1)
	if idx >= 0 {
		s := r.sessions[idx]
		s.LastMessage = ev.Content
		s.LastUpdated = at
		next = append(next, s)
		next = append(next, r.sessions[:idx]...)
		next = append(next, r.sessions[idx+1:]...)
	} else {
		name := ev.Name
		if strings.TrimSpace(name) == "" {
			name = domain.FallbackName(ev.SessionID)
		}
		next = append(next, domain.Session{
			ID:               ev.SessionID,
			CustomerName:     name,
			LastMessage:      ev.Content,
			LastUpdated:      at,
			Status:           ev.Status,
			BlockedUntil:     ev.BlockedUntil,
			Channel:          ev.Channel,
			SenderType:       ev.SenderType,
			CurrentReceiver:  ev.CurrentReceiver,
			PreviousReceiver: ev.PreviousReceiver,
			Alert:            ev.Alert,
		})
		next = append(next, r.sessions...)
	}
	r.sessions = next
	return next
}

// Promote moves a known session to the front after a local send. Unknown ids
// are ignored.
func (r *Reconciler) Promote(id, content string, at time.Time) bool {
	idx := r.index(id)
	if idx < 0 {
		return false
	}
	s := r.sessions[idx]
	s.LastMessage = content
	s.LastUpdated = at
	next := make([]domain.Session, 0, len(r.sessions))
	next = append(next, s)
	next = append(next, r.sessions[:idx]...)
	next = append(next, r.sessions[idx+1:]...)
	r.sessions = next
	return true
}

// ApplyStatus updates status fields in place without reordering.
func (r *Reconciler) ApplyStatus(id, status, blockedUntil string) bool {
	idx := r.index(id)
	if idx < 0 {
		return false
	}
	next := make([]domain.Session, len(r.sessions))
	copy(next, r.sessions)
	next[idx].Status = status
	next[idx].BlockedUntil = blockedUntil
	r.sessions = next
	return true
}

func (r *Reconciler) Find(id string) (domain.Session, bool) {
	if idx := r.index(id); idx >= 0 {
		return r.sessions[idx], true
	}
	return domain.Session{}, false
}

func (r *Reconciler) Sessions() []domain.Session {
	return r.sessions
}

// Filter returns sessions whose name, id or preview contains term, ignoring
// case. An empty term returns every session.
func (r *Reconciler) Filter(term string) []domain.Session {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return r.sessions
	}
	out := make([]domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if strings.Contains(strings.ToLower(s.DisplayName()), term) ||
			strings.Contains(strings.ToLower(s.ID), term) ||
			strings.Contains(strings.ToLower(s.LastMessage), term) {
			out = append(out, s)
		}
	}
	return out
}

func (r *Reconciler) index(id string) int {
	for i, s := range r.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}
