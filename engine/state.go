package engine

import "time"

// MatchKey identifies one match's editor state within a session view.
type MatchKey struct {
	Round int // round index, 0-based
	Match int // match index within the round
}

// CommitStatus is the explicit per-match commit state machine, replacing
// scattered saving/saved flags.
type CommitStatus string

const (
	// StatusIdle: nothing in flight for this match.
	StatusIdle CommitStatus = "idle"
	// StatusPendingLocal: a structurally valid pair is held locally but
	// no commit has started yet.
	StatusPendingLocal CommitStatus = "pending_local"
	// StatusCommitting: a commit attempt is in flight.
	StatusCommitting CommitStatus = "committing"
	// StatusCommitted: the last commit succeeded (or was queued while
	// offline, which counts as saved-but-will-sync for the UI).
	StatusCommitted CommitStatus = "committed"
	// StatusQueued: committed to the durable offline queue.
	StatusQueued CommitStatus = "queued"
	// StatusFailed: the last commit attempt failed.
	StatusFailed CommitStatus = "failed"
)

// savedMarkerTTL is how long the transient "saved" indicator stays up
// after a successful commit.
const savedMarkerTTL = 2 * time.Second

// MatchEntry is the single owned record of a match's local edit state:
// raw drafts per team, the confirmed-but-unacknowledged pair, and the
// commit status. Everything the input fields display comes from here.
type MatchEntry struct {
	Draft1 *string
	Draft2 *string

	// Confirmed pair: structurally valid, optimistically shown as saved
	// before the network round-trip resolves.
	Confirmed1 *int
	Confirmed2 *int

	Status  CommitStatus
	SavedAt time.Time
}

// SavedMarker reports whether the transient saved indicator should be
// visible right now.
func (e *MatchEntry) SavedMarker(now time.Time) bool {
	if e.Status != StatusCommitted && e.Status != StatusQueued {
		return false
	}
	return now.Sub(e.SavedAt) < savedMarkerTTL
}

func (e *MatchEntry) clone() *MatchEntry {
	cp := *e
	cp.Draft1 = cloneStr(e.Draft1)
	cp.Draft2 = cloneStr(e.Draft2)
	cp.Confirmed1 = cloneInt(e.Confirmed1)
	cp.Confirmed2 = cloneInt(e.Confirmed2)
	return &cp
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
