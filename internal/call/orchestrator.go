package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/memory-postcard/voicecall/domain/entities"
	"github.com/memory-postcard/voicecall/domain/repositories"
)

const (
	// Credential issuance gets a small bounded retry budget instead of
	// a wall-clock timeout.
	defaultCredentialAttempts = 3
	defaultCredentialBackoff  = time.Second

	eventBufferSize = 32
)

// Orchestrator owns the realtime transport connection for one voice
// call at a time: it acquires the local audio source, joins the named
// channel, publishes media, and relays participant, quality, and state
// events to its subscriber. Teardown is idempotent.
type Orchestrator struct {
	transport repositories.RealtimeTransport
	tokens    repositories.CredentialIssuer
	logger    *zap.Logger

	credentialAttempts int
	credentialBackoff  time.Duration

	mu             sync.Mutex
	session        *entities.Session
	track          repositories.LocalAudioTrack
	remote         *repositories.RemoteParticipant
	muted          bool
	starting       bool
	stopped        bool
	dispatcherStop chan struct{}

	events chan Event
}

// NewOrchestrator creates an orchestrator in the idle state.
func NewOrchestrator(
	transport repositories.RealtimeTransport,
	tokens repositories.CredentialIssuer,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		transport:          transport,
		tokens:             tokens,
		logger:             logger,
		credentialAttempts: defaultCredentialAttempts,
		credentialBackoff:  defaultCredentialBackoff,
		events:             make(chan Event, eventBufferSize),
	}
}

// Events returns the subscriber channel. Events are dropped, not
// blocked on, when the subscriber falls behind.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Start brings a call up: local capture, credential, join, publish.
// It fails fast when a call is already underway. A DeviceError is
// surfaced immediately without retry; credential issuance is retried
// before the session moves to the failed state.
func (o *Orchestrator) Start(ctx context.Context, channelID string, userID uint) error {
	o.mu.Lock()
	if o.starting || (o.session != nil && o.session.State != entities.CallStateIdle && !o.session.Terminal()) {
		o.mu.Unlock()
		return ErrNotIdle
	}
	// Setup runs unlocked and can take seconds; the starting flag keeps
	// a concurrent Start failing fast for its whole duration.
	o.starting = true
	sess := entities.NewSession(channelID, userID)
	o.session = sess
	o.stopped = false
	o.muted = false
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.starting = false
		o.mu.Unlock()
	}()

	track, err := o.transport.CreateMicrophoneTrack(ctx)
	if err != nil {
		o.mu.Lock()
		o.session = nil
		o.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}
	o.mu.Lock()
	o.track = track
	o.mu.Unlock()

	cred, err := o.issueCredential(ctx, sess)
	if err != nil {
		o.setState(entities.CallStateFailed)
		o.releaseTrack()
		return err
	}

	o.setState(entities.CallStateJoining)
	if err := o.transport.Join(ctx, repositories.JoinConfig{
		AppID:   cred.AppID,
		Token:   cred.Token,
		Channel: channelID,
		UserID:  userID,
	}); err != nil {
		o.setState(entities.CallStateFailed)
		o.releaseTrack()
		return fmt.Errorf("%w: join: %v", ErrTransport, err)
	}
	o.setState(entities.CallStateJoined)

	o.setState(entities.CallStatePublishing)
	if err := o.transport.Publish(ctx, track); err != nil {
		o.setState(entities.CallStateFailed)
		if leaveErr := o.transport.Leave(ctx); leaveErr != nil {
			o.logger.Warn("leave after failed publish", zap.Error(leaveErr))
		}
		o.releaseTrack()
		return fmt.Errorf("%w: publish: %v", ErrTransport, err)
	}
	o.setState(entities.CallStateActive)

	stop := make(chan struct{})
	o.mu.Lock()
	o.dispatcherStop = stop
	o.mu.Unlock()
	go o.dispatch(stop)

	o.logger.Info("call active",
		zap.String("channel", channelID),
		zap.Uint("userID", userID))
	return nil
}

// Stop tears the call down. Safe to call from any state and safe to
// call twice: only the first caller flips the guard, so unpublish and
// leave go out at most once. Teardown errors are logged, never
// surfaced; by the time they occur the user has already left the call.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	if o.session == nil || o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	state := o.session.State
	channel := o.session.ChannelID
	track := o.track
	remote := o.remote
	stop := o.dispatcherStop
	o.track = nil
	o.remote = nil
	o.dispatcherStop = nil
	o.mu.Unlock()

	if stop != nil {
		close(stop)
	}

	if state != entities.CallStateIdle && state != entities.CallStateFailed {
		o.setState(entities.CallStateLeaving)
		if err := o.transport.Unpublish(ctx); err != nil {
			o.logger.Warn("unpublish failed", zap.String("channel", channel), zap.Error(err))
		}
		if err := o.transport.Leave(ctx); err != nil {
			o.logger.Warn("leave failed", zap.String("channel", channel), zap.Error(err))
		}
	}

	if remote != nil && remote.Audio != nil {
		if err := remote.Audio.Stop(); err != nil {
			o.logger.Warn("stopping remote audio", zap.Error(err))
		}
	}
	if track != nil {
		if err := track.Close(); err != nil {
			o.logger.Warn("releasing local audio track", zap.Error(err))
		}
	}

	o.setState(entities.CallStateIdle)
	o.mu.Lock()
	o.session = nil
	o.mu.Unlock()

	o.logger.Info("call stopped", zap.String("channel", channel))
}

// SetMuted toggles the local microphone track. Purely local: the
// session state and channel membership are untouched.
func (o *Orchestrator) SetMuted(muted bool) error {
	o.mu.Lock()
	track := o.track
	o.mu.Unlock()
	if track == nil {
		return errors.New("no active audio track")
	}
	if err := track.SetEnabled(!muted); err != nil {
		return fmt.Errorf("toggle mute: %w", err)
	}
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
	return nil
}

// Muted reports the local mute flag.
func (o *Orchestrator) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// State returns the current session state, idle when no session exists.
func (o *Orchestrator) State() entities.CallState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return entities.CallStateIdle
	}
	return o.session.State
}

// Session returns a snapshot of the current session, or nil.
func (o *Orchestrator) Session() *entities.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	snapshot := *o.session
	return &snapshot
}

// SetPlaybackDevice routes the bound remote participant's audio to the
// given output device.
func (o *Orchestrator) SetPlaybackDevice(deviceID string) error {
	o.mu.Lock()
	remote := o.remote
	o.mu.Unlock()
	if remote == nil || remote.Audio == nil {
		return errors.New("no remote audio to route")
	}
	return remote.Audio.SetDevice(deviceID)
}

func (o *Orchestrator) issueCredential(ctx context.Context, sess *entities.Session) (repositories.Credential, error) {
	var lastErr error
	for attempt := 1; attempt <= o.credentialAttempts; attempt++ {
		cred, err := o.tokens.Issue(ctx, sess.LocalUserID, sess.ChannelID)
		if err == nil {
			return cred, nil
		}
		lastErr = err
		o.mu.Lock()
		sess.RetryCount++
		o.mu.Unlock()
		o.logger.Warn("credential issuance failed",
			zap.String("channel", sess.ChannelID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < o.credentialAttempts {
			select {
			case <-time.After(o.credentialBackoff):
			case <-ctx.Done():
				return repositories.Credential{}, ctx.Err()
			}
		}
	}
	return repositories.Credential{}, fmt.Errorf("%w after %d attempts: %v",
		ErrCredential, o.credentialAttempts, lastErr)
}

func (o *Orchestrator) releaseTrack() {
	o.mu.Lock()
	track := o.track
	o.track = nil
	o.mu.Unlock()
	if track == nil {
		return
	}
	if err := track.Close(); err != nil {
		o.logger.Warn("releasing local audio track", zap.Error(err))
	}
}

// dispatch consumes transport events on a single loop so subscribers
// observe deterministic ordering.
func (o *Orchestrator) dispatch(stop chan struct{}) {
	events := o.transport.Events()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o.handleTransportEvent(ev)
		}
	}
}

func (o *Orchestrator) handleTransportEvent(ev repositories.TransportEvent) {
	switch ev := ev.(type) {
	case repositories.ParticipantChanged:
		o.bindRemote(ev.Participant)
	case repositories.QualitySample:
		o.emit(SignalChanged{
			Gauge:     entities.ReduceSignal(ev.Sample),
			Connected: ev.Sample.Connected(),
		})
	case repositories.ConnectionStateChanged:
		o.logger.Info("transport connection state",
			zap.String("state", ev.State),
			zap.String("reason", ev.Reason))
		o.emit(TransportStateChanged{State: ev.State, Reason: ev.Reason})
	case repositories.FragmentReceived:
		o.emit(FragmentReceived{Fragment: ev.Fragment})
	}
}

// bindRemote swaps the current remote participant. The previous inbound
// handle is always released before the new one is bound; two live
// bindings must never coexist.
func (o *Orchestrator) bindRemote(p repositories.RemoteParticipant) {
	o.mu.Lock()
	prev := o.remote
	if p.Audio != nil {
		bound := p
		o.remote = &bound
	} else {
		o.remote = nil
	}
	next := o.remote
	o.mu.Unlock()

	if prev != nil && prev.Audio != nil {
		if err := prev.Audio.Stop(); err != nil {
			o.logger.Warn("releasing previous remote audio",
				zap.Uint("userID", prev.UserID), zap.Error(err))
		}
	}
	o.emit(RemoteChanged{Participant: next})
}

func (o *Orchestrator) setState(to entities.CallState) {
	o.mu.Lock()
	sess := o.session
	if sess == nil || sess.State == to {
		o.mu.Unlock()
		return
	}
	from := sess.State
	sess.State = to
	channel := sess.ChannelID
	o.mu.Unlock()

	o.logger.Info("call state changed",
		zap.String("channel", channel),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	o.emit(StateChanged{From: from, To: to})
}

func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("dropping call event, subscriber too slow")
	}
}
