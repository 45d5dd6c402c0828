// Package transport provides realtime transport implementations: a
// websocket gateway client for production and an in-memory mock for
// tests and local development.
package transport

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/memory-postcard/voicecall/domain/repositories"
)

// Mock implements repositories.RealtimeTransport in memory. Tests push
// events with Emit and inspect call counts; error fields inject
// failures for the corresponding operations.
type Mock struct {
	logger *zap.Logger

	MicErr     error
	JoinErr    error
	PublishErr error

	mu             sync.Mutex
	joined         bool
	published      bool
	lastJoin       repositories.JoinConfig
	lastTrack      *MockLocalTrack
	joinCalls      int
	publishCalls   int
	unpublishCalls int
	leaveCalls     int

	events chan repositories.TransportEvent
}

var _ repositories.RealtimeTransport = (*Mock)(nil)

// NewMock creates a mock transport.
func NewMock(logger *zap.Logger) *Mock {
	return &Mock{
		logger: logger,
		events: make(chan repositories.TransportEvent, 32),
	}
}

// CreateMicrophoneTrack returns a fresh local track, or MicErr.
func (m *Mock) CreateMicrophoneTrack(_ context.Context) (repositories.LocalAudioTrack, error) {
	if m.MicErr != nil {
		return nil, m.MicErr
	}
	track := &MockLocalTrack{enabled: true}
	m.mu.Lock()
	m.lastTrack = track
	m.mu.Unlock()
	return track, nil
}

// LastTrack returns the most recently created local track.
func (m *Mock) LastTrack() *MockLocalTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTrack
}

// Join records the join, or fails with JoinErr.
func (m *Mock) Join(_ context.Context, cfg repositories.JoinConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joinCalls++
	if m.JoinErr != nil {
		return m.JoinErr
	}
	m.joined = true
	m.lastJoin = cfg
	return nil
}

// Publish records the publish, or fails with PublishErr.
func (m *Mock) Publish(_ context.Context, _ repositories.LocalAudioTrack) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishCalls++
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.published = true
	return nil
}

// Unpublish records the unpublish.
func (m *Mock) Unpublish(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unpublishCalls++
	m.published = false
	return nil
}

// Leave records the leave.
func (m *Mock) Leave(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveCalls++
	m.joined = false
	return nil
}

// Events returns the event channel tests push into via Emit.
func (m *Mock) Events() <-chan repositories.TransportEvent {
	return m.events
}

// Emit delivers an event to the consumer.
func (m *Mock) Emit(ev repositories.TransportEvent) {
	m.events <- ev
}

// Joined reports whether the mock is in a channel.
func (m *Mock) Joined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined
}

// LastJoin returns the most recent join config.
func (m *Mock) LastJoin() repositories.JoinConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastJoin
}

// JoinCalls returns how many joins were attempted.
func (m *Mock) JoinCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinCalls
}

// PublishCalls returns how many publishes were attempted.
func (m *Mock) PublishCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishCalls
}

// UnpublishCalls returns how many unpublishes were issued.
func (m *Mock) UnpublishCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unpublishCalls
}

// LeaveCalls returns how many leaves were issued.
func (m *Mock) LeaveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveCalls
}

// MockLocalTrack is an in-memory microphone handle.
type MockLocalTrack struct {
	mu      sync.Mutex
	enabled bool
	closed  bool
}

var _ repositories.LocalAudioTrack = (*MockLocalTrack)(nil)

// SetEnabled toggles capture.
func (t *MockLocalTrack) SetEnabled(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	return nil
}

// Close releases the handle.
func (t *MockLocalTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Enabled reports the capture flag.
func (t *MockLocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Closed reports whether the handle was released.
func (t *MockLocalTrack) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// MockRemoteTrack is an in-memory inbound audio handle.
type MockRemoteTrack struct {
	mu      sync.Mutex
	stopped bool
	device  string
}

var _ repositories.RemoteAudioTrack = (*MockRemoteTrack)(nil)

// SetDevice records the playback routing.
func (t *MockRemoteTrack) SetDevice(deviceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.device = deviceID
	return nil
}

// Stop releases the handle.
func (t *MockRemoteTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	return nil
}

// Stopped reports whether the handle was released.
func (t *MockRemoteTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Device returns the recorded playback device.
func (t *MockRemoteTrack) Device() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.device
}
