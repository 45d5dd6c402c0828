package call

import (
	"github.com/memory-postcard/voicecall/domain/entities"
	"github.com/memory-postcard/voicecall/domain/repositories"
)

// Event is a typed notification relayed by the orchestrator to its
// subscriber while a call is active.
type Event interface {
	callEvent()
}

// StateChanged reports a session state transition.
type StateChanged struct {
	From entities.CallState
	To   entities.CallState
}

// RemoteChanged reports the current remote participant binding.
// Participant is nil when the previous binding was dropped.
type RemoteChanged struct {
	Participant *repositories.RemoteParticipant
}

// SignalChanged carries the reduced link-quality gauge for display.
type SignalChanged struct {
	Gauge     entities.SignalGauge
	Connected bool
}

// FragmentReceived relays one speech-to-text fragment for transcript
// reconciliation.
type FragmentReceived struct {
	Fragment entities.Fragment
}

// TransportStateChanged relays a transport-level connection change,
// distinct from the session state machine.
type TransportStateChanged struct {
	State  string
	Reason string
}

func (StateChanged) callEvent()          {}
func (RemoteChanged) callEvent()         {}
func (SignalChanged) callEvent()         {}
func (FragmentReceived) callEvent()      {}
func (TransportStateChanged) callEvent() {}
