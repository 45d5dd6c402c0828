package entities

import "sort"

// Fragment is one incremental speech-to-text update for a speaker,
// either partial (still being revised) or final (settled). Fragments
// arrive from the transport in bursts and possibly out of order across
// speakers.
type Fragment struct {
	SpeakerID uint    `json:"speaker_id"`
	Text      string  `json:"text"`
	IsFinal   bool    `json:"is_final"`
	Timestamp float64 `json:"timestamp"`
}

// TranscriptEntry is a committed member of the transcript, ordered by
// ascending timestamp rather than arrival order.
type TranscriptEntry struct {
	SpeakerID uint    `json:"speaker_id"`
	Text      string  `json:"text"`
	IsFinal   bool    `json:"is_final"`
	Timestamp float64 `json:"timestamp"`
}

// Transcript reconciles a stream of fragments into an ordered,
// deduplicated conversation log. For a given speaker at most one
// non-final entry exists at any time; a final entry is never mutated,
// only superseded by strictly newer activity.
type Transcript struct {
	entries []TranscriptEntry
}

// Apply merges one fragment into the transcript. It returns false when
// the fragment is a stale echo of something already finalized and was
// discarded without mutating the transcript.
func (t *Transcript) Apply(f Fragment) bool {
	lastFinal := -1
	lastPending := -1
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if e.SpeakerID != f.SpeakerID {
			continue
		}
		if e.IsFinal {
			if lastFinal == -1 {
				lastFinal = i
			}
		} else if lastPending == -1 {
			lastPending = i
		}
		if lastFinal != -1 && lastPending != -1 {
			break
		}
	}

	// Anything at or before the speaker's last final timestamp is an
	// out-of-order replay of text that already settled.
	if lastFinal != -1 && f.Timestamp <= t.entries[lastFinal].Timestamp {
		return false
	}

	entry := TranscriptEntry(f)
	if lastPending != -1 {
		// The next fragment for a speaker always supersedes that
		// speaker's pending entry, partial or final alike.
		t.entries[lastPending] = entry
	} else {
		t.entries = append(t.entries, entry)
	}

	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].Timestamp < t.entries[j].Timestamp
	})
	return true
}

// Entries returns a copy of the transcript in display order.
func (t *Transcript) Entries() []TranscriptEntry {
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of committed entries.
func (t *Transcript) Len() int {
	return len(t.entries)
}
