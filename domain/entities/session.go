package entities

// CallState represents where a voice-call session is in its lifecycle.
type CallState string

const (
	CallStateIdle       CallState = "idle"
	CallStateJoining    CallState = "joining"
	CallStateJoined     CallState = "joined"
	CallStatePublishing CallState = "publishing"
	CallStateActive     CallState = "active"
	CallStateLeaving    CallState = "leaving"
	// CallStateFailed is terminal for the call attempt; a new session
	// must be created to try again.
	CallStateFailed CallState = "failed"
)

// Session identifies one voice call. It is owned exclusively by the
// orchestrator: created on call start, destroyed on call end or
// unrecoverable failure.
type Session struct {
	ChannelID   string    `json:"channel_id"`
	LocalUserID uint      `json:"local_user_id"`
	State       CallState `json:"state"`
	RetryCount  int       `json:"retry_count"`
}

// NewSession creates a session for a named channel in the idle state.
func NewSession(channelID string, localUserID uint) *Session {
	return &Session{
		ChannelID:   channelID,
		LocalUserID: localUserID,
		State:       CallStateIdle,
	}
}

// Terminal reports whether the session can make no further progress.
func (s *Session) Terminal() bool {
	return s.State == CallStateFailed
}
