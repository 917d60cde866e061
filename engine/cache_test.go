package engine

import (
	"testing"
	"time"
)

func TestCacheEvictsOldestPastCap(t *testing.T) {
	s := NewSessionState()

	for i := 0; i < DefaultCacheCap+1; i++ {
		s.SetDraft(MatchKey{Round: 0, Match: i}, 1, "5")
	}

	if got := s.Len(); got != DefaultCacheCap {
		t.Fatalf("cache holds %d entries, want %d", got, DefaultCacheCap)
	}
	if e := s.Read(MatchKey{Round: 0, Match: 0}); e != nil {
		t.Error("oldest key should have been evicted")
	}
	if e := s.Read(MatchKey{Round: 0, Match: DefaultCacheCap}); e == nil {
		t.Error("newest key must survive the eviction")
	}

	keys := s.Keys()
	if keys[0] != (MatchKey{Round: 0, Match: 1}) {
		t.Errorf("FIFO head is %+v, want match 1", keys[0])
	}
}

func TestCacheRewriteDoesNotReorder(t *testing.T) {
	s := NewSessionState()
	s.SetDraft(MatchKey{Match: 0}, 1, "1")
	s.SetDraft(MatchKey{Match: 1}, 1, "2")
	// Rewriting an existing key keeps its original insertion slot.
	s.SetDraft(MatchKey{Match: 0}, 2, "3")

	keys := s.Keys()
	if keys[0] != (MatchKey{Match: 0}) || keys[1] != (MatchKey{Match: 1}) {
		t.Errorf("unexpected order after rewrite: %+v", keys)
	}
}

func TestRoundChangeClearsCache(t *testing.T) {
	s := NewSessionState()
	s.SetDraft(MatchKey{Round: 0, Match: 0}, 1, "14")
	s.SetDraft(MatchKey{Round: 0, Match: 1}, 2, "10")

	s.SetCursor(1, 2)

	if s.Len() != 0 {
		t.Fatalf("cache still holds %d entries after round change", s.Len())
	}
}

func TestSetCursorSameRoundKeepsCache(t *testing.T) {
	s := NewSessionState()
	s.SetDraft(MatchKey{Round: 0, Match: 0}, 1, "14")

	s.SetCursor(0, 2)

	if s.Len() != 1 {
		t.Error("re-setting the current round must not clear edits")
	}
}

func TestMarkCommittedFreesSlotAndKeepsMarker(t *testing.T) {
	s := NewSessionState()
	key := MatchKey{Round: 0, Match: 0}

	s.SetDraft(key, 1, "14")
	s.SetDraft(key, 2, "10")
	s.Confirm(key, 14, 10)
	s.MarkCommitting(key)
	s.MarkCommitted(key, 14, 10, false)

	if s.Read(key) != nil {
		t.Error("committed key must leave the cache")
	}
	if s.Len() != 0 {
		t.Errorf("cache holds %d entries after a commit, want 0", s.Len())
	}
	if !s.SavedMarker(key) {
		t.Error("saved marker must be visible right after the commit")
	}
}

func TestCommittedKeysDoNotCountAgainstCap(t *testing.T) {
	s := NewSessionState()

	// A long evening of saved matches must leave the whole cache free
	// for live drafts.
	for i := 0; i < DefaultCacheCap; i++ {
		key := MatchKey{Round: 0, Match: i}
		s.SetDraft(key, 1, "14")
		s.MarkCommitted(key, 14, 10, false)
	}
	if s.Len() != 0 {
		t.Fatalf("cache holds %d entries, want 0", s.Len())
	}

	s.SetDraft(MatchKey{Round: 0, Match: 100}, 1, "5")
	if s.Len() != 1 {
		t.Errorf("cache holds %d entries, want 1", s.Len())
	}
	if !s.SavedMarker(MatchKey{Round: 0, Match: 0}) {
		t.Error("markers must survive outside the FIFO")
	}
}

func TestMarkCommittedKeepsNewerDraft(t *testing.T) {
	s := NewSessionState()
	key := MatchKey{Round: 0, Match: 0}

	s.SetDraft(key, 1, "14")
	s.SetDraft(key, 2, "10")
	s.Confirm(key, 14, 10)
	s.MarkCommitting(key)

	// The operator retypes one side while the commit is in flight.
	s.SetDraft(key, 1, "15")

	s.MarkCommitted(key, 14, 10, false)

	e := s.Read(key)
	if e == nil || e.Draft1 == nil || *e.Draft1 != "15" {
		t.Fatal("the newer draft must survive the in-flight commit resolving")
	}
	if e.Status != StatusPendingLocal {
		t.Errorf("status = %s, want pending_local while a newer draft exists", e.Status)
	}
}

func TestMarkCommittedQueuedStatus(t *testing.T) {
	s := NewSessionState()
	key := MatchKey{Round: 0, Match: 0}
	s.SetDraft(key, 1, "14")
	s.MarkCommitted(key, 14, 10, true)

	if e := s.Read(key); e == nil || e.Status != StatusQueued {
		t.Fatal("offline commits resolve to queued")
	}
}

func TestSavedMarkerExpires(t *testing.T) {
	s := NewSessionState()
	base := time.Now()
	current := base
	s.now = func() time.Time { return current }

	key := MatchKey{Round: 0, Match: 0}
	s.SetDraft(key, 1, "14")
	s.MarkCommitted(key, 14, 10, false)

	current = base.Add(time.Second)
	if !s.SavedMarker(key) {
		t.Error("marker should be visible within the TTL")
	}
	current = base.Add(3 * time.Second)
	if s.SavedMarker(key) {
		t.Error("marker should expire after the TTL")
	}
}

func TestClearEntryDropsKey(t *testing.T) {
	s := NewSessionState()
	key := MatchKey{Round: 0, Match: 3}
	s.SetDraft(key, 1, "oops")
	s.ClearEntry(key)

	if s.Read(key) != nil {
		t.Error("cleared key still readable")
	}
	if s.Len() != 0 {
		t.Error("order slice leaked the cleared key")
	}
}
