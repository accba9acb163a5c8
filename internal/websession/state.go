package websession

import "errors"

// State is the lifecycle of one web-call connection. Ended and Failed are
// terminal for that connection instance; placing another call requires a
// fresh CreateSession + StartSession pair.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateEnded      State = "ended"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool { return s == StateEnded || s == StateFailed }

// EventKind is one of the exactly four provider event categories the
// manager subscribes to.
type EventKind string

const (
	EventConnecting EventKind = "call_connecting"
	EventStarted    EventKind = "call_started"
	EventEnded      EventKind = "call_ended"
	EventError      EventKind = "error"
)

// Event is a provider signal delivered by the realtime connection.
type Event struct {
	Kind    EventKind
	Message string
}

// Transition is the observer notification emitted on every state change,
// including the informational Connecting self-transition.
type Transition struct {
	State State

	// Reason is set only for StateFailed.
	Reason string
}

var (
	// ErrMicrophoneNotVerified rejects StartSession without a successful
	// microphone probe in the same attempt.
	ErrMicrophoneNotVerified = errors.New("websession: microphone access not verified for this attempt")

	// ErrSessionActive rejects a second concurrent StartSession.
	ErrSessionActive = errors.New("websession: a session is already in progress")

	// ErrTokenAlreadyUsed enforces single-use access tokens.
	ErrTokenAlreadyUsed = errors.New("websession: access token already used")

	// ErrInvalidSession rejects sessions missing call id or access token.
	ErrInvalidSession = errors.New("websession: session missing call id or access token")

	// ErrSessionFailed wraps the Failed(reason) terminal state.
	ErrSessionFailed = errors.New("websession: session failed")
)
