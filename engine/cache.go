package engine

import (
	"strconv"
	"sync"
	"time"
)

// DefaultCacheCap bounds how many match keys may hold live editor state
// at once. Insertion past the cap evicts the oldest key: a simple
// bounded FIFO, not strict LRU, which is fine because entries are
// naturally short-lived.
const DefaultCacheCap = 50

// SessionState owns all per-session view state: the local edit cache,
// the per-match commit state machine and the round cursors. All methods
// are safe for concurrent use; commits resolve against it after their
// network round-trip finishes, which may happen after the user has
// already navigated away.
type SessionState struct {
	mu sync.Mutex

	entries map[MatchKey]*MatchEntry
	order   []MatchKey // FIFO eviction order
	cap     int

	// saved holds the transient saved-marker timestamps. It lives
	// beside the FIFO so a committed key frees its cache slot
	// immediately instead of occupying the cap for the marker's TTL.
	saved map[MatchKey]time.Time

	cursor       int
	courtCursors map[int]int

	now func() time.Time
}

// NewSessionState creates view state with the default cache bound.
func NewSessionState() *SessionState {
	return &SessionState{
		entries:      make(map[MatchKey]*MatchEntry),
		saved:        make(map[MatchKey]time.Time),
		courtCursors: make(map[int]int),
		cap:          DefaultCacheCap,
		now:          time.Now,
	}
}

// SetDraft records raw text for one team's field. Text edits are
// synchronous; only commits are asynchronous.
func (s *SessionState) SetDraft(key MatchKey, team int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	if team == 1 {
		e.Draft1 = &text
	} else {
		e.Draft2 = &text
	}
	if e.Status == StatusIdle || e.Status == StatusCommitted || e.Status == StatusQueued || e.Status == StatusFailed {
		e.Status = StatusPendingLocal
	}
}

// Confirm records a structurally valid pair so the UI can show an
// optimistic checkmark before the commit resolves.
func (s *SessionState) Confirm(key MatchKey, team1, team2 int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	e.Confirmed1 = &team1
	e.Confirmed2 = &team2
	e.Status = StatusPendingLocal
}

// MarkCommitting transitions the key into the in-flight state.
func (s *SessionState) MarkCommitting(key MatchKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(key).Status = StatusCommitting
}

// MarkCommitted clears the key's editor state and starts the transient
// saved marker. queued distinguishes an offline enqueue from a server
// acknowledged write. Drafts that no longer match the committed pair are
// kept: the user typed again while the commit was in flight, and the
// cache must reflect whatever they typed most recently.
func (s *SessionState) MarkCommitted(key MatchKey, team1, team2 int, queued bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		// The round was switched while the commit was in flight; the
		// write still happened, there is just nothing left to display.
		return
	}
	e.Confirmed1, e.Confirmed2 = nil, nil
	if draftMatches(e.Draft1, team1) {
		e.Draft1 = nil
	}
	if draftMatches(e.Draft2, team2) {
		e.Draft2 = nil
	}
	if e.Draft1 != nil || e.Draft2 != nil {
		e.Status = StatusPendingLocal
		return
	}
	if queued {
		// Queued entries stay live: saved-but-will-sync must remain
		// visible until the replay lands or the round changes.
		e.Status = StatusQueued
		e.SavedAt = s.now()
		return
	}
	// Commit success frees the slot; only the marker timestamp remains.
	s.removeLocked(key)
	s.saved[key] = s.now()
	s.pruneSavedLocked()
}

// SavedMarker reports whether the transient saved indicator should be
// visible for the key right now.
func (s *SessionState) SavedMarker(key MatchKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok {
		return e.SavedMarker(now)
	}
	at, ok := s.saved[key]
	return ok && now.Sub(at) < savedMarkerTTL
}

// pruneSavedLocked drops expired marker timestamps. Caller holds s.mu.
func (s *SessionState) pruneSavedLocked() {
	now := s.now()
	for k, at := range s.saved {
		if now.Sub(at) >= savedMarkerTTL {
			delete(s.saved, k)
		}
	}
}

// MarkFailed records a failed commit attempt, keeping drafts intact so
// the user can retry.
func (s *SessionState) MarkFailed(key MatchKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.Status = StatusFailed
	}
}

// ClearEntry drops a single key, used when a commit is rejected as
// invalid.
func (s *SessionState) ClearEntry(key MatchKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

// ClearAll drops every live entry. Called on round-index change and on
// teardown of the viewing session. In-flight commits are not cancelled.
func (s *SessionState) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[MatchKey]*MatchEntry)
	s.order = s.order[:0]
	s.saved = make(map[MatchKey]time.Time)
}

// Read returns a copy of the entry for the key, or nil when the key has
// no live state.
func (s *SessionState) Read(key MatchKey) *MatchEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	return e.clone()
}

// Len reports the number of live keys.
func (s *SessionState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Keys returns the live keys in insertion order.
func (s *SessionState) Keys() []MatchKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MatchKey, len(s.order))
	copy(out, s.order)
	return out
}

// entry returns the live entry for key, creating it (and evicting the
// oldest key past the cap) when absent. Caller holds s.mu.
func (s *SessionState) entry(key MatchKey) *MatchEntry {
	if e, ok := s.entries[key]; ok {
		return e
	}
	if len(s.order) >= s.cap {
		s.removeLocked(s.order[0])
	}
	e := &MatchEntry{Status: StatusIdle}
	s.entries[key] = e
	s.order = append(s.order, key)
	return e
}

func draftMatches(draft *string, committed int) bool {
	if draft == nil {
		return true
	}
	return *draft == strconv.Itoa(committed)
}

func (s *SessionState) removeLocked(key MatchKey) {
	delete(s.saved, key)
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
