package entities

import "testing"

func TestTranscriptSupersedesPending(t *testing.T) {
	var tr Transcript

	tr.Apply(Fragment{SpeakerID: 1, Text: "he", IsFinal: false, Timestamp: 1})
	tr.Apply(Fragment{SpeakerID: 1, Text: "hello", IsFinal: false, Timestamp: 2})
	tr.Apply(Fragment{SpeakerID: 1, Text: "hello world", IsFinal: true, Timestamp: 3})

	entries := tr.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Text != "hello world" {
		t.Errorf("expected text %q, got %q", "hello world", entries[0].Text)
	}
	if !entries[0].IsFinal {
		t.Error("expected the entry to be final")
	}
	if entries[0].Timestamp != 3 {
		t.Errorf("expected timestamp 3, got %v", entries[0].Timestamp)
	}
}

func TestTranscriptDiscardsStaleFragments(t *testing.T) {
	var tr Transcript

	tr.Apply(Fragment{SpeakerID: 1, Text: "settled", IsFinal: true, Timestamp: 10})

	if tr.Apply(Fragment{SpeakerID: 1, Text: "late echo", IsFinal: true, Timestamp: 5}) {
		t.Error("stale final should be discarded")
	}
	if tr.Apply(Fragment{SpeakerID: 1, Text: "late partial", IsFinal: false, Timestamp: 5}) {
		t.Error("stale partial should be discarded")
	}

	entries := tr.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Text != "settled" {
		t.Errorf("stale fragment mutated the transcript: %q", entries[0].Text)
	}
}

func TestTranscriptStaleGuardIsPerSpeaker(t *testing.T) {
	var tr Transcript

	tr.Apply(Fragment{SpeakerID: 1, Text: "first", IsFinal: true, Timestamp: 10})

	// Another speaker's earlier fragment is not stale.
	if !tr.Apply(Fragment{SpeakerID: 2, Text: "other", IsFinal: true, Timestamp: 5}) {
		t.Error("a different speaker's fragment should not be discarded")
	}

	if tr.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", tr.Len())
	}
}

func TestTranscriptOrdersByTimestamp(t *testing.T) {
	var tr Transcript

	tr.Apply(Fragment{SpeakerID: 1, Text: "hi", IsFinal: true, Timestamp: 1})
	tr.Apply(Fragment{SpeakerID: 2, Text: "yo", IsFinal: true, Timestamp: 2})
	tr.Apply(Fragment{SpeakerID: 1, Text: "again", IsFinal: true, Timestamp: 3})

	entries := tr.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantTimestamps := []float64{1, 2, 3}
	wantSpeakers := []uint{1, 2, 1}
	for i, e := range entries {
		if e.Timestamp != wantTimestamps[i] {
			t.Errorf("entry %d: expected timestamp %v, got %v", i, wantTimestamps[i], e.Timestamp)
		}
		if e.SpeakerID != wantSpeakers[i] {
			t.Errorf("entry %d: expected speaker %d, got %d", i, wantSpeakers[i], e.SpeakerID)
		}
	}
}

func TestTranscriptReordersSlowSpeaker(t *testing.T) {
	var tr Transcript

	// Speaker 2's fragment arrives first despite a later timestamp.
	tr.Apply(Fragment{SpeakerID: 2, Text: "yo", IsFinal: true, Timestamp: 2})
	tr.Apply(Fragment{SpeakerID: 1, Text: "hi", IsFinal: true, Timestamp: 1})

	entries := tr.Entries()
	if entries[0].SpeakerID != 1 || entries[1].SpeakerID != 2 {
		t.Errorf("expected display order [1@1, 2@2], got [%d@%v, %d@%v]",
			entries[0].SpeakerID, entries[0].Timestamp,
			entries[1].SpeakerID, entries[1].Timestamp)
	}
}

func TestTranscriptSinglePendingPerSpeaker(t *testing.T) {
	var tr Transcript

	tr.Apply(Fragment{SpeakerID: 1, Text: "a", IsFinal: false, Timestamp: 1})
	tr.Apply(Fragment{SpeakerID: 2, Text: "b", IsFinal: false, Timestamp: 2})
	tr.Apply(Fragment{SpeakerID: 1, Text: "ab", IsFinal: false, Timestamp: 3})

	pending := 0
	for _, e := range tr.Entries() {
		if e.SpeakerID == 1 && !e.IsFinal {
			pending++
		}
	}
	if pending != 1 {
		t.Errorf("expected exactly one pending entry for speaker 1, got %d", pending)
	}
	if tr.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", tr.Len())
	}
}

func TestTranscriptNewFinalAfterFinalAppends(t *testing.T) {
	var tr Transcript

	tr.Apply(Fragment{SpeakerID: 1, Text: "first", IsFinal: true, Timestamp: 1})
	tr.Apply(Fragment{SpeakerID: 1, Text: "sec", IsFinal: false, Timestamp: 2})
	tr.Apply(Fragment{SpeakerID: 1, Text: "second", IsFinal: true, Timestamp: 3})

	entries := tr.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Text != "first" || entries[1].Text != "second" {
		t.Errorf("unexpected entries: %q, %q", entries[0].Text, entries[1].Text)
	}
}
