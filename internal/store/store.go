// Package store holds the engine's outward-facing call state: the
// connected flags, the current character and postcard context, the live
// transcript, and the last signal gauge. It is the only point where the
// engine and the rest of the app exchange data.
package store

import (
	"sync"

	"go.uber.org/zap"

	"github.com/memory-postcard/voicecall/domain/entities"
)

const subscriberBuffer = 32

// UpdateType labels a store update pushed to subscribers.
type UpdateType string

const (
	UpdateAgentConnected UpdateType = "agent_connected"
	UpdateRoomConnected  UpdateType = "room_connected"
	UpdateCharacter      UpdateType = "character"
	UpdatePostcards      UpdateType = "postcards"
	UpdateTranscript     UpdateType = "transcript"
	UpdateSignal         UpdateType = "signal"
)

// Update is one state change notification. Only the field matching the
// type is populated.
type Update struct {
	Type       UpdateType                 `json:"type"`
	Connected  *bool                      `json:"connected,omitempty"`
	Character  *entities.Character        `json:"character,omitempty"`
	Postcards  []entities.Postcard        `json:"postcards,omitempty"`
	Transcript []entities.TranscriptEntry `json:"transcript,omitempty"`
	Signal     *SignalState               `json:"signal,omitempty"`
}

// SignalState is the displayed link quality.
type SignalState struct {
	Level     int  `json:"level"`
	Connected bool `json:"connected"`
}

// Store is a thread-safe container with subscriber fan-out. Updates are
// dropped for slow subscribers rather than blocking the engine.
type Store struct {
	logger *zap.Logger

	mu             sync.Mutex
	agentConnected bool
	roomConnected  bool
	character      *entities.Character
	postcards      []entities.Postcard
	transcript     entities.Transcript
	signal         SignalState
	subs           map[int]chan Update
	nextSub        int
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	return &Store{
		logger: logger,
		signal: SignalState{Level: 4, Connected: true},
		subs:   make(map[int]chan Update),
	}
}

// Subscribe registers an update channel. The returned cancel function
// unregisters and closes it.
func (s *Store) Subscribe() (<-chan Update, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Update, subscriberBuffer)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// SetAgentConnected flips the backend-agent connected flag.
func (s *Store) SetAgentConnected(connected bool) {
	s.mu.Lock()
	s.agentConnected = connected
	s.mu.Unlock()
	s.publish(Update{Type: UpdateAgentConnected, Connected: &connected})
}

// AgentConnected reports the backend-agent connected flag.
func (s *Store) AgentConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentConnected
}

// SetRoomConnected flips the transport-room connected flag.
func (s *Store) SetRoomConnected(connected bool) {
	s.mu.Lock()
	s.roomConnected = connected
	s.mu.Unlock()
	s.publish(Update{Type: UpdateRoomConnected, Connected: &connected})
}

// RoomConnected reports the transport-room connected flag.
func (s *Store) RoomConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomConnected
}

// SetCurrentCharacter binds the character for the active call, or nil
// to clear it.
func (s *Store) SetCurrentCharacter(character *entities.Character) {
	s.mu.Lock()
	s.character = character
	s.mu.Unlock()
	s.publish(Update{Type: UpdateCharacter, Character: character})
}

// CurrentCharacter returns the bound character, or nil.
func (s *Store) CurrentCharacter() *entities.Character {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.character
}

// SetRecentPostcards replaces the postcard context.
func (s *Store) SetRecentPostcards(postcards []entities.Postcard) {
	s.mu.Lock()
	s.postcards = postcards
	s.mu.Unlock()
	s.publish(Update{Type: UpdatePostcards, Postcards: postcards})
}

// RecentPostcards returns the postcard context.
func (s *Store) RecentPostcards() []entities.Postcard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.postcards
}

// AddChatItem merges one fragment into the transcript. Stale fragments
// are discarded silently and publish nothing.
func (s *Store) AddChatItem(f entities.Fragment) {
	s.mu.Lock()
	applied := s.transcript.Apply(f)
	var entries []entities.TranscriptEntry
	if applied {
		entries = s.transcript.Entries()
	}
	s.mu.Unlock()

	if !applied {
		s.logger.Debug("discarded stale fragment",
			zap.Uint("speakerID", f.SpeakerID),
			zap.Float64("timestamp", f.Timestamp))
		return
	}
	s.publish(Update{Type: UpdateTranscript, Transcript: entries})
}

// Transcript returns a copy of the reconciled transcript.
func (s *Store) Transcript() []entities.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Entries()
}

// SetSignal records the displayed link quality.
func (s *Store) SetSignal(gauge entities.SignalGauge, connected bool) {
	state := SignalState{Level: gauge.Level, Connected: connected}
	s.mu.Lock()
	s.signal = state
	s.mu.Unlock()
	s.publish(Update{Type: UpdateSignal, Signal: &state})
}

// Signal returns the displayed link quality.
func (s *Store) Signal() SignalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signal
}

// Reset clears the per-call state after teardown.
func (s *Store) Reset() {
	s.mu.Lock()
	s.agentConnected = false
	s.roomConnected = false
	s.character = nil
	s.postcards = nil
	s.transcript = entities.Transcript{}
	s.signal = SignalState{Level: 4, Connected: true}
	s.mu.Unlock()
}

func (s *Store) publish(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		select {
		case sub <- u:
		default:
			s.logger.Warn("dropping store update, subscriber too slow",
				zap.String("type", string(u.Type)))
		}
	}
}
