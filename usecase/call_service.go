package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/memory-postcard/voicecall/domain/entities"
	"github.com/memory-postcard/voicecall/domain/repositories"
	"github.com/memory-postcard/voicecall/internal/call"
	"github.com/memory-postcard/voicecall/internal/store"
)

const (
	recentPostcardLimit = 5
	teardownTimeout     = 10 * time.Second
)

// CallService runs the call lifecycle end to end: it loads the persona
// context, brings the transport session up, starts the backend agent,
// and on hangup tears both down in parallel without letting either
// block the other.
type CallService struct {
	orchestrator *call.Orchestrator
	agents       *call.AgentController
	characters   repositories.CharacterRepository
	postcards    repositories.PostcardRepository
	transcripts  repositories.TranscriptRepository
	store        *store.Store
	logger       *zap.Logger

	mu      sync.Mutex
	channel string
	userID  uint
}

// NewCallService wires the engine components together.
func NewCallService(
	orchestrator *call.Orchestrator,
	agents *call.AgentController,
	characters repositories.CharacterRepository,
	postcards repositories.PostcardRepository,
	transcripts repositories.TranscriptRepository,
	st *store.Store,
	logger *zap.Logger,
) *CallService {
	return &CallService{
		orchestrator: orchestrator,
		agents:       agents,
		characters:   characters,
		postcards:    postcards,
		transcripts:  transcripts,
		store:        st,
		logger:       logger,
	}
}

// Run forwards orchestrator events into the store. Start it once with
// `go svc.Run()`; it exits when the orchestrator's event channel closes.
func (s *CallService) Run() {
	for ev := range s.orchestrator.Events() {
		s.applyEvent(ev)
	}
}

func (s *CallService) applyEvent(ev call.Event) {
	switch ev := ev.(type) {
	case call.FragmentReceived:
		s.store.AddChatItem(ev.Fragment)
	case call.SignalChanged:
		s.store.SetSignal(ev.Gauge, ev.Connected)
	case call.StateChanged:
		switch ev.To {
		case entities.CallStateActive:
			s.store.SetRoomConnected(true)
		case entities.CallStateIdle, entities.CallStateFailed:
			s.store.SetRoomConnected(false)
		}
	case call.RemoteChanged:
		userID := uint(0)
		if ev.Participant != nil {
			userID = ev.Participant.UserID
		}
		s.logger.Debug("remote participant changed", zap.Uint("userID", userID))
	case call.TransportStateChanged:
		s.logger.Debug("transport state",
			zap.String("state", ev.State), zap.String("reason", ev.Reason))
	}
}

// StartCall connects a voice call against the given character. It
// returns the channel id the call lives on. When the transport comes up
// but the agent start fails, the error is surfaced and the call stays
// up so the caller can retry with RetryAgent.
func (s *CallService) StartCall(ctx context.Context, characterID, userID uint) (string, error) {
	s.mu.Lock()
	if s.channel != "" {
		s.mu.Unlock()
		return "", call.ErrNotIdle
	}
	s.mu.Unlock()

	character, err := s.characters.GetCharacter(ctx, characterID)
	if err != nil {
		return "", fmt.Errorf("load character %d: %w", characterID, err)
	}

	recent, err := s.postcards.RecentPostcards(ctx, recentPostcardLimit)
	if err != nil {
		// The call can proceed without conversation context.
		s.logger.Warn("loading recent postcards failed", zap.Error(err))
		recent = nil
	}

	// The store is mutated only once the orchestrator accepts the call,
	// so a rejected attempt can never disturb an active call's state.
	channel := "voicecall_" + uuid.NewString()
	if err := s.orchestrator.Start(ctx, channel, userID); err != nil {
		return "", err
	}

	s.store.SetCurrentCharacter(character)
	s.store.SetRecentPostcards(recent)

	s.mu.Lock()
	s.channel = channel
	s.userID = userID
	s.mu.Unlock()

	if err := s.agents.StartOnce(ctx, channel, userID, character, recent); err != nil {
		return channel, err
	}
	s.store.SetAgentConnected(true)

	return channel, nil
}

// RetryAgent retries the backend agent start for the active call after
// a failed first attempt.
func (s *CallService) RetryAgent(ctx context.Context) error {
	s.mu.Lock()
	channel := s.channel
	userID := s.userID
	s.mu.Unlock()
	if channel == "" {
		return errors.New("no active call")
	}

	character := s.store.CurrentCharacter()
	recent := s.store.RecentPostcards()
	if err := s.agents.StartOnce(ctx, channel, userID, character, recent); err != nil {
		return err
	}
	s.store.SetAgentConnected(true)
	return nil
}

// EndCall hangs up. Transport teardown and agent stop run in parallel
// and in any order; the transcript is archived best-effort once both
// finish. EndCall itself returns immediately and is safe to call twice.
func (s *CallService) EndCall() {
	s.mu.Lock()
	channel := s.channel
	userID := s.userID
	s.channel = ""
	s.userID = 0
	s.mu.Unlock()

	s.store.SetAgentConnected(false)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		s.orchestrator.Stop(ctx)
	}()
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		s.agents.Stop(ctx, channel)
	}()

	go func() {
		wg.Wait()
		if channel != "" {
			s.archive(channel, userID)
		}
		s.store.Reset()
	}()
}

// SetMuted toggles the local microphone for the active call.
func (s *CallService) SetMuted(muted bool) error {
	return s.orchestrator.SetMuted(muted)
}

// ActiveChannel returns the current channel id, empty when no call is up.
func (s *CallService) ActiveChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func (s *CallService) archive(channel string, userID uint) {
	if s.transcripts == nil {
		return
	}
	entries := s.store.Transcript()
	if len(entries) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := s.transcripts.Archive(ctx, channel, userID, entries); err != nil {
		s.logger.Warn("transcript archive failed",
			zap.String("channel", channel), zap.Error(err))
		return
	}
	s.logger.Info("transcript archived",
		zap.String("channel", channel), zap.Int("entries", len(entries)))
}
