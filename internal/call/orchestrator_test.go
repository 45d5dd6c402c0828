package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/memory-postcard/voicecall/adapters/transport"
	"github.com/memory-postcard/voicecall/domain/entities"
	"github.com/memory-postcard/voicecall/domain/repositories"
)

type stubIssuer struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *stubIssuer) Issue(_ context.Context, _ uint, _ string) (repositories.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return repositories.Credential{}, errors.New("token server unavailable")
	}
	return repositories.Credential{AppID: "app-1", Token: "tok-1"}, nil
}

func (s *stubIssuer) issueCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestOrchestrator(mock *transport.Mock, issuer *stubIssuer) *Orchestrator {
	o := NewOrchestrator(mock, issuer, zap.NewNop())
	o.credentialBackoff = time.Millisecond
	return o
}

// waitEvent drains the subscriber channel until match returns true or
// the deadline passes.
func waitEvent(t *testing.T, events <-chan Event, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return nil
		}
	}
}

func TestStartHappyPath(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	o := newTestOrchestrator(mock, &stubIssuer{})

	if err := o.Start(context.Background(), "voicecall_abc", 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if o.State() != entities.CallStateActive {
		t.Errorf("expected state %q, got %q", entities.CallStateActive, o.State())
	}
	if !mock.Joined() {
		t.Error("transport should be joined")
	}
	cfg := mock.LastJoin()
	if cfg.AppID != "app-1" || cfg.Token != "tok-1" {
		t.Errorf("join used wrong credential: %+v", cfg)
	}
	if cfg.Channel != "voicecall_abc" || cfg.UserID != 42 {
		t.Errorf("join used wrong addressing: %+v", cfg)
	}
	if mock.PublishCalls() != 1 {
		t.Errorf("expected 1 publish, got %d", mock.PublishCalls())
	}
}

func TestStartRejectsSecondCall(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	o := newTestOrchestrator(mock, &stubIssuer{})

	if err := o.Start(context.Background(), "ch-1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.Start(context.Background(), "ch-2", 1); !errors.Is(err, ErrNotIdle) {
		t.Errorf("expected ErrNotIdle, got %v", err)
	}
	if mock.JoinCalls() != 1 {
		t.Errorf("second start must not touch the transport, got %d joins", mock.JoinCalls())
	}
}

type slowIssuer struct {
	delay time.Duration
}

func (s slowIssuer) Issue(_ context.Context, _ uint, _ string) (repositories.Credential, error) {
	time.Sleep(s.delay)
	return repositories.Credential{AppID: "app-1", Token: "tok-1"}, nil
}

func TestStartConcurrentSecondFailsFast(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	o := NewOrchestrator(mock, slowIssuer{delay: 50 * time.Millisecond}, zap.NewNop())

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = o.Start(context.Background(), "ch-1", 42)
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrNotIdle):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Fatalf("expected one success and one fail-fast rejection, got ok=%d rejected=%d", ok, rejected)
	}
	if mock.JoinCalls() != 1 {
		t.Errorf("only the winning start may join, got %d joins", mock.JoinCalls())
	}
	if mock.PublishCalls() != 1 {
		t.Errorf("only the winning start may publish, got %d publishes", mock.PublishCalls())
	}
	if o.State() != entities.CallStateActive {
		t.Errorf("expected the surviving call to be active, got %q", o.State())
	}
}

func TestStartDeviceError(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	mock.MicErr = errors.New("microphone busy")
	o := newTestOrchestrator(mock, &stubIssuer{})

	err := o.Start(context.Background(), "ch-1", 1)
	if !errors.Is(err, ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
	if o.State() != entities.CallStateIdle {
		t.Errorf("device failure should leave the orchestrator idle, got %q", o.State())
	}
	if mock.JoinCalls() != 0 {
		t.Error("device failure must not reach the transport")
	}
}

func TestCredentialRetrySucceeds(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	issuer := &stubIssuer{failures: 2}
	o := newTestOrchestrator(mock, issuer)

	if err := o.Start(context.Background(), "ch-1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issuer.issueCalls() != 3 {
		t.Errorf("expected 3 issue attempts, got %d", issuer.issueCalls())
	}
	sess := o.Session()
	if sess == nil || sess.RetryCount != 2 {
		t.Errorf("expected retry count 2, got %+v", sess)
	}
}

func TestCredentialExhausted(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	issuer := &stubIssuer{failures: 10}
	o := newTestOrchestrator(mock, issuer)

	err := o.Start(context.Background(), "ch-1", 1)
	if !errors.Is(err, ErrCredential) {
		t.Fatalf("expected ErrCredential, got %v", err)
	}
	if issuer.issueCalls() != 3 {
		t.Errorf("expected exactly 3 issue attempts, got %d", issuer.issueCalls())
	}
	if o.State() != entities.CallStateFailed {
		t.Errorf("expected failed state, got %q", o.State())
	}
	if track := mock.LastTrack(); track == nil || !track.Closed() {
		t.Error("local track should be released on credential failure")
	}
	if mock.JoinCalls() != 0 {
		t.Error("credential failure must not join the channel")
	}
}

func TestJoinFailure(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	mock.JoinErr = errors.New("channel full")
	o := newTestOrchestrator(mock, &stubIssuer{})

	err := o.Start(context.Background(), "ch-1", 1)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if o.State() != entities.CallStateFailed {
		t.Errorf("expected failed state, got %q", o.State())
	}
	if mock.PublishCalls() != 0 {
		t.Error("failed join must not publish")
	}
	if track := mock.LastTrack(); track == nil || !track.Closed() {
		t.Error("local track should be released on join failure")
	}
}

func TestPublishFailureLeavesChannel(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	mock.PublishErr = errors.New("media rejected")
	o := newTestOrchestrator(mock, &stubIssuer{})

	err := o.Start(context.Background(), "ch-1", 1)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if mock.LeaveCalls() != 1 {
		t.Errorf("failed publish should leave the channel, got %d leaves", mock.LeaveCalls())
	}
	if track := mock.LastTrack(); track == nil || !track.Closed() {
		t.Error("local track should be released on publish failure")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	o := newTestOrchestrator(mock, &stubIssuer{})

	if err := o.Start(context.Background(), "ch-1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o.Stop(context.Background())
	o.Stop(context.Background())

	if mock.UnpublishCalls() != 1 {
		t.Errorf("expected 1 unpublish, got %d", mock.UnpublishCalls())
	}
	if mock.LeaveCalls() != 1 {
		t.Errorf("expected 1 leave, got %d", mock.LeaveCalls())
	}
	if track := mock.LastTrack(); track == nil || !track.Closed() {
		t.Error("local track should be closed by stop")
	}
	if o.State() != entities.CallStateIdle {
		t.Errorf("expected idle after stop, got %q", o.State())
	}
}

func TestStopWithoutStart(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	o := newTestOrchestrator(mock, &stubIssuer{})

	o.Stop(context.Background())

	if mock.LeaveCalls() != 0 {
		t.Error("stop without a session must not touch the transport")
	}
}

func TestSetMuted(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	o := newTestOrchestrator(mock, &stubIssuer{})

	if err := o.SetMuted(true); err == nil {
		t.Error("mute without a track should fail")
	}

	if err := o.Start(context.Background(), "ch-1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.SetMuted(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.LastTrack().Enabled() {
		t.Error("muting should disable the capture track")
	}
	if !o.Muted() {
		t.Error("expected muted flag")
	}
	if o.State() != entities.CallStateActive {
		t.Errorf("mute must not change the session state, got %q", o.State())
	}

	if err := o.SetMuted(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mock.LastTrack().Enabled() {
		t.Error("unmuting should re-enable the capture track")
	}
	if mock.LeaveCalls() != 0 {
		t.Errorf("mute must not leave the channel, got %d leaves", mock.LeaveCalls())
	}
	if mock.JoinCalls() != 1 {
		t.Errorf("mute must not rejoin the channel, got %d joins", mock.JoinCalls())
	}
	if mock.UnpublishCalls() != 0 {
		t.Errorf("mute must not unpublish, got %d unpublishes", mock.UnpublishCalls())
	}
}

func TestRemoteReplacementReleasesPrevious(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	o := newTestOrchestrator(mock, &stubIssuer{})

	if err := o.Start(context.Background(), "ch-1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := &transport.MockRemoteTrack{}
	second := &transport.MockRemoteTrack{}

	mock.Emit(repositories.ParticipantChanged{
		Participant: repositories.RemoteParticipant{UserID: 100, Audio: first},
	})
	waitEvent(t, o.Events(), func(ev Event) bool {
		rc, ok := ev.(RemoteChanged)
		return ok && rc.Participant != nil && rc.Participant.UserID == 100
	})

	mock.Emit(repositories.ParticipantChanged{
		Participant: repositories.RemoteParticipant{UserID: 200, Audio: second},
	})
	waitEvent(t, o.Events(), func(ev Event) bool {
		rc, ok := ev.(RemoteChanged)
		return ok && rc.Participant != nil && rc.Participant.UserID == 200
	})

	if !first.Stopped() {
		t.Error("previous remote audio should be released before binding the new one")
	}
	if second.Stopped() {
		t.Error("current remote audio must stay live")
	}

	if err := o.SetPlaybackDevice("speaker-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Device() != "speaker-2" {
		t.Errorf("expected device %q, got %q", "speaker-2", second.Device())
	}
}

func TestRemoteDepartureUnbinds(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	o := newTestOrchestrator(mock, &stubIssuer{})

	if err := o.Start(context.Background(), "ch-1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	audio := &transport.MockRemoteTrack{}
	mock.Emit(repositories.ParticipantChanged{
		Participant: repositories.RemoteParticipant{UserID: 100, Audio: audio},
	})
	waitEvent(t, o.Events(), func(ev Event) bool {
		rc, ok := ev.(RemoteChanged)
		return ok && rc.Participant != nil
	})

	mock.Emit(repositories.ParticipantChanged{
		Participant: repositories.RemoteParticipant{UserID: 100},
	})
	waitEvent(t, o.Events(), func(ev Event) bool {
		rc, ok := ev.(RemoteChanged)
		return ok && rc.Participant == nil
	})

	if !audio.Stopped() {
		t.Error("departed participant's audio should be released")
	}
	if err := o.SetPlaybackDevice("speaker-1"); err == nil {
		t.Error("playback routing should fail with no remote bound")
	}
}

func TestQualityRelay(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	o := newTestOrchestrator(mock, &stubIssuer{})

	if err := o.Start(context.Background(), "ch-1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.Emit(repositories.QualitySample{Sample: entities.SignalSample{Uplink: 3, Downlink: 1}})
	ev := waitEvent(t, o.Events(), func(ev Event) bool {
		_, ok := ev.(SignalChanged)
		return ok
	})
	sc := ev.(SignalChanged)
	if sc.Gauge.Level != 2 {
		t.Errorf("expected gauge level 2, got %d", sc.Gauge.Level)
	}
	if !sc.Connected {
		t.Error("expected connected")
	}

	mock.Emit(repositories.QualitySample{Sample: entities.SignalSample{Uplink: 6, Downlink: 2}})
	ev = waitEvent(t, o.Events(), func(ev Event) bool {
		sc, ok := ev.(SignalChanged)
		return ok && !sc.Connected
	})
	if ev.(SignalChanged).Gauge.Level != 0 {
		t.Errorf("expected gauge level 0, got %d", ev.(SignalChanged).Gauge.Level)
	}
}

func TestFragmentRelay(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	o := newTestOrchestrator(mock, &stubIssuer{})

	if err := o.Start(context.Background(), "ch-1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.Emit(repositories.FragmentReceived{Fragment: entities.Fragment{
		SpeakerID: 7, Text: "你好", IsFinal: true, Timestamp: 12.5,
	}})
	ev := waitEvent(t, o.Events(), func(ev Event) bool {
		_, ok := ev.(FragmentReceived)
		return ok
	})
	fr := ev.(FragmentReceived)
	if fr.Fragment.SpeakerID != 7 || fr.Fragment.Text != "你好" {
		t.Errorf("unexpected fragment: %+v", fr.Fragment)
	}
}

func TestStateChangeEvents(t *testing.T) {
	mock := transport.NewMock(zap.NewNop())
	o := newTestOrchestrator(mock, &stubIssuer{})

	if err := o.Start(context.Background(), "ch-1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []entities.CallState{
		entities.CallStateJoining,
		entities.CallStateJoined,
		entities.CallStatePublishing,
		entities.CallStateActive,
	}
	for _, state := range want {
		ev := waitEvent(t, o.Events(), func(ev Event) bool {
			_, ok := ev.(StateChanged)
			return ok
		})
		if got := ev.(StateChanged).To; got != state {
			t.Fatalf("expected transition to %q, got %q", state, got)
		}
	}
}
