package repositories

import (
	"context"

	"github.com/memory-postcard/voicecall/domain/entities"
)

// LocalAudioTrack is the microphone capture handle. Exactly one exists
// per session; it must be closed before the session is destroyed.
type LocalAudioTrack interface {
	// SetEnabled toggles capture without touching the channel. Used for
	// mute, which is a purely local operation.
	SetEnabled(enabled bool) error
	Close() error
}

// RemoteAudioTrack is an inbound audio handle for a remote participant.
type RemoteAudioTrack interface {
	// SetDevice routes playback to the given output device.
	SetDevice(deviceID string) error
	Stop() error
}

// RemoteParticipant is a participant's id plus its optional inbound
// audio handle.
type RemoteParticipant struct {
	UserID uint
	Audio  RemoteAudioTrack
}

// JoinConfig carries the credential and addressing for joining a channel.
type JoinConfig struct {
	AppID   string
	Token   string
	Channel string
	UserID  uint
}

// TransportEvent is a typed notification from the realtime transport.
// Events are delivered on a single channel and consumed by one
// dispatcher loop, which gives deterministic ordering.
type TransportEvent interface {
	transportEvent()
}

// ParticipantChanged reports a remote participant joining, changing
// tracks, or leaving (Audio nil).
type ParticipantChanged struct {
	Participant RemoteParticipant
}

// QualitySample reports a raw link-quality measurement.
type QualitySample struct {
	Sample entities.SignalSample
}

// ConnectionStateChanged reports a transport-level connection change.
type ConnectionStateChanged struct {
	State  string
	Reason string
}

// FragmentReceived carries one incremental speech-to-text update.
type FragmentReceived struct {
	Fragment entities.Fragment
}

func (ParticipantChanged) transportEvent()     {}
func (QualitySample) transportEvent()          {}
func (ConnectionStateChanged) transportEvent() {}
func (FragmentReceived) transportEvent()       {}

// RealtimeTransport abstracts the realtime media provider: local
// capture, channel membership, publishing, and event delivery.
type RealtimeTransport interface {
	CreateMicrophoneTrack(ctx context.Context) (LocalAudioTrack, error)
	Join(ctx context.Context, cfg JoinConfig) error
	Publish(ctx context.Context, track LocalAudioTrack) error
	Unpublish(ctx context.Context) error
	Leave(ctx context.Context) error
	// Events never closes for the lifetime of the transport; callers
	// stop consuming when they tear down.
	Events() <-chan TransportEvent
}
