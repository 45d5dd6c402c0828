package call

import "errors"

var (
	// ErrNotIdle is returned when Start is called on a session that is
	// already underway.
	ErrNotIdle = errors.New("call already in progress")

	// ErrDevice means the microphone is unavailable (no permission or
	// no hardware). Never retried.
	ErrDevice = errors.New("microphone unavailable")

	// ErrCredential means token issuance kept failing after the retry
	// budget was spent. Fatal for this call attempt.
	ErrCredential = errors.New("credential issuance failed")

	// ErrTransport means the channel join or publish was rejected.
	ErrTransport = errors.New("transport rejected")
)
