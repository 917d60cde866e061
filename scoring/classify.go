package scoring

import "strconv"

// EntryStatus is the per-field validity classification surfaced to the
// UI layer (border colouring and friends).
type EntryStatus string

const (
	// EntryUnset: no input, either never touched or deliberately
	// cleared.
	EntryUnset EntryStatus = "unset"
	// EntryInvalid: non-numeric, negative, or above the target.
	EntryInvalid EntryStatus = "invalid"
	// EntryPending: structurally valid but not yet saved.
	EntryPending EntryStatus = "pending_valid"
	// EntrySaved: matches the last committed value.
	EntrySaved EntryStatus = "saved"
)

// ParseScore parses raw field text into a score value. The second return
// is false for empty or non-numeric input.
func ParseScore(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Classify resolves the status of a single score field. draft is the raw
// text currently in the field (nil when untouched), saved is the last
// committed value for that side (nil when never saved).
func Classify(p Policy, draft *string, saved *int) EntryStatus {
	if draft == nil {
		if saved != nil {
			return EntrySaved
		}
		return EntryUnset
	}
	v, ok := ParseScore(*draft)
	if !ok {
		// A cleared field reads as untouched, whether or not an earlier
		// value was saved.
		if *draft == "" {
			return EntryUnset
		}
		return EntryInvalid
	}
	if v < 0 || v > p.Target() {
		return EntryInvalid
	}
	if saved != nil && v == *saved {
		return EntrySaved
	}
	return EntryPending
}
