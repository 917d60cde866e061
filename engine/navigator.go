package engine

// Cursor returns the shared round cursor.
func (s *SessionState) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// SetCursor moves the shared cursor, clamped to [0, maxIndex]. Changing
// the displayed round clears the whole edit cache; in-flight commits for
// the round being left are allowed to finish and write through.
func (s *SessionState) SetCursor(index, maxIndex int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	index = clamp(index, 0, maxIndex)
	if index != s.cursor {
		s.cursor = index
		s.entries = make(map[MatchKey]*MatchEntry)
		s.order = s.order[:0]
	}
	return s.cursor
}

// Step moves the shared cursor by delta, clamped. The second return is
// true when the caller asked to move past the last existing round: that
// is not a navigation but a request to generate the next round, handled
// by the advancement guard.
func (s *SessionState) Step(delta, maxIndex int) (int, bool) {
	s.mu.Lock()
	target := s.cursor + delta
	s.mu.Unlock()

	if target > maxIndex {
		return s.Cursor(), true
	}
	return s.SetCursor(target, maxIndex), false
}

// CourtCursor returns the round a given court is viewing in parallel
// mode. A court defaults to the shared cursor until its operator pages
// it explicitly.
func (s *SessionState) CourtCursor(court int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.courtCursors[court]; ok {
		return idx
	}
	return s.cursor
}

// StepCourt pages one court forward or back. Purely a view concern: it
// never affects which round's matches are eligible for scoring on other
// courts. The past-the-end signal is reported the same way as Step.
func (s *SessionState) StepCourt(court, delta, maxIndex int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.courtCursors[court]
	if !ok {
		cur = s.cursor
	}
	target := cur + delta
	if target > maxIndex {
		return cur, true
	}
	s.courtCursors[court] = clamp(target, 0, maxIndex)
	return s.courtCursors[court], false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
