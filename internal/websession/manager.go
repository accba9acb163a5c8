package websession

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"voicedesk/internal/audio"
	"voicedesk/internal/telephony"
)

// Manager drives a single logical web-call session: microphone precondition,
// session creation against the provider, and the realtime connection state
// machine. One manager owns at most one live connection at any time.
//
// All observable state changes flow through transition() so observers see a
// single ordered stream instead of scattered callbacks.
type Manager struct {
	provider  telephony.Provider
	transport Transport
	device    audio.Device
	log       *slog.Logger

	mu          sync.Mutex
	state       State
	reason      string
	conn        Conn
	micVerified bool
	starting    bool
	usedTokens  map[string]struct{}

	transitions chan Transition
}

const transitionBuffer = 32

func NewManager(provider telephony.Provider, transport Transport, device audio.Device, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		provider:    provider,
		transport:   transport,
		device:      device,
		log:         log,
		state:       StateIdle,
		usedTokens:  map[string]struct{}{},
		transitions: make(chan Transition, transitionBuffer),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FailureReason returns the reason attached to StateFailed, if any.
func (m *Manager) FailureReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// Transitions exposes the ordered state-change stream for observers (UI).
// The channel is buffered; a slow observer loses oldest-first notifications
// rather than blocking the session.
func (m *Manager) Transitions() <-chan Transition {
	return m.transitions
}

// RequestMicrophoneAccess probes the capture device and records the result
// for the current attempt. StartSession requires a fresh successful probe.
func (m *Manager) RequestMicrophoneAccess(ctx context.Context) error {
	err := audio.Probe(ctx, m.device)

	m.mu.Lock()
	m.micVerified = err == nil
	m.mu.Unlock()

	if err != nil {
		m.log.Warn("microphone probe failed", "err", err)
	}
	return err
}

// CreateSession registers a web call for the agent and returns the session
// carrying the single-use access token. The token is never logged.
func (m *Manager) CreateSession(ctx context.Context, agentID string) (telephony.WebCall, error) {
	if strings.TrimSpace(agentID) == "" {
		return telephony.WebCall{}, telephony.ErrInvalidAgent
	}
	wc, err := m.provider.CreateWebCall(ctx, telephony.WebCallRequest{AgentID: agentID})
	if err != nil {
		return telephony.WebCall{}, err
	}
	m.log.Info("web call created", "call_id", wc.CallID, "agent_id", agentID)
	return wc, nil
}

// StartSession attaches a realtime connection for the session and blocks the
// caller until a terminal event. It returns nil when the call ended normally
// and ErrSessionFailed (with the provider reason) when it did not.
//
// Preconditions enforced here:
//   - a successful RequestMicrophoneAccess in this attempt
//   - the access token has not been used before
//   - no other StartSession is outstanding on this manager
func (m *Manager) StartSession(ctx context.Context, session telephony.WebCall) error {
	if session.CallID == "" || session.AccessToken == "" {
		return ErrInvalidSession
	}

	m.mu.Lock()
	if m.starting {
		m.mu.Unlock()
		return ErrSessionActive
	}
	if !m.micVerified {
		m.mu.Unlock()
		return ErrMicrophoneNotVerified
	}
	if _, used := m.usedTokens[session.AccessToken]; used {
		m.mu.Unlock()
		return ErrTokenAlreadyUsed
	}

	// Teardown-before-replace: never two live connections.
	if m.conn != nil {
		m.conn.Stop()
		m.conn = nil
	}

	m.starting = true
	m.micVerified = false // the probe result is consumed by this attempt
	m.usedTokens[session.AccessToken] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
	}()

	conn, err := m.transport.Dial(ctx)
	if err != nil {
		m.mu.Lock()
		m.transition(StateFailed, err.Error())
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrSessionFailed, err)
	}

	m.mu.Lock()
	m.conn = conn
	m.transition(StateConnecting, "")
	m.mu.Unlock()

	opts := StartOptions{
		AccessToken: session.AccessToken,
		EnableVAD:   true,
		VAD:         VADOptions{Threshold: 0.5, AutoThreshold: true},
	}.withDefaults()

	if err := conn.Start(ctx, opts); err != nil {
		m.mu.Lock()
		conn.Stop()
		m.conn = nil
		m.transition(StateFailed, err.Error())
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrSessionFailed, err)
	}

	return m.waitTerminal(conn)
}

// EndSession cancels the live connection: stop, discard, transition to
// Ended. It is an explicit no-op when no connection is attached, so calling
// it after a terminal event is always safe.
func (m *Manager) EndSession() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return
	}
	if m.state == StateConnecting || m.state == StateActive {
		m.conn.Stop()
		m.conn = nil
		m.transition(StateEnded, "")
	}
}

func (m *Manager) waitTerminal(conn Conn) error {
	for ev := range conn.Events() {
		if m.apply(conn, ev) {
			break
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Terminal() {
		// The transport went away without a terminal event and without an
		// explicit EndSession; surface that as a failure, not a clean end.
		m.conn = nil
		m.transition(StateFailed, "connection closed unexpectedly")
	}
	if m.state == StateFailed {
		return fmt.Errorf("%w: %s", ErrSessionFailed, m.reason)
	}
	return nil
}

// apply advances the state machine for one provider event and reports
// whether a terminal state was reached.
func (m *Manager) apply(conn Conn, ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Events may race with EndSession; once terminal, nothing moves.
	if m.state.Terminal() {
		return true
	}

	switch ev.Kind {
	case EventConnecting:
		if m.state == StateConnecting {
			// Informational self-transition to keep observers updated.
			m.transition(StateConnecting, "")
		}
	case EventStarted:
		if m.state == StateConnecting {
			m.transition(StateActive, "")
			m.log.Info("call is live")
		}
	case EventEnded:
		m.conn = nil
		m.transition(StateEnded, "")
		m.log.Info("call is over")
		return true
	case EventError:
		// Failure forces teardown before it is reported; never leave a
		// dangling live connection behind a reported error.
		conn.Stop()
		m.conn = nil
		m.transition(StateFailed, ev.Message)
		return true
	}
	return false
}

// transition must be called with mu held.
func (m *Manager) transition(to State, reason string) {
	m.state = to
	m.reason = reason

	select {
	case m.transitions <- Transition{State: to, Reason: reason}:
	default:
		// Observer is behind; dropping is preferable to stalling the call.
	}
}
