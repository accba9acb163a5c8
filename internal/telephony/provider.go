package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider defines the provider-agnostic interface used by business logic.
//
// Rules:
// - No provider SDK/HTTP calls outside telephony adapters.
// - Keep request/response types provider-agnostic; store provider raw payloads in metadata if needed.
// - Adapters validate response shapes at the boundary; a malformed upstream
//   body is an UpstreamError, never a partially-populated success.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// CreateWebCall registers a browser/web call session for the given agent
	// and returns the single-use access token that joins it.
	CreateWebCall(ctx context.Context, req WebCallRequest) (WebCall, error)

	// ListAgents returns the voice-agent directory entries.
	ListAgents(ctx context.Context) ([]Agent, error)

	// GetAgent returns the full configuration of one agent.
	GetAgent(ctx context.Context, agentID string) (AgentConfig, error)

	// ListCalls returns recent call records, newest first.
	ListCalls(ctx context.Context, q CallQuery) ([]ProviderCall, error)

	// CreateBatchCall queues outbound phone calls to a list of numbers.
	CreateBatchCall(ctx context.Context, req BatchCallRequest) (BatchCallResult, error)
}

// WebCallRequest asks the provider for a new web call session.
type WebCallRequest struct {
	AgentID string `json:"agent_id"`

	// Metadata is echoed back on call records and webhooks.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WebCall is the created session. AccessToken is a single-use secret; it must
// never be persisted or logged.
type WebCall struct {
	CallID      string `json:"call_id"`
	AccessToken string `json:"access_token"`
	AgentID     string `json:"agent_id,omitempty"`
}

// Agent is a directory entry. AgentName may be empty; callers fall back to the id.
type Agent struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name,omitempty"`
}

// AgentConfig is the subset of the provider agent configuration the dashboard
// surfaces. Unknown provider fields are ignored on decode.
type AgentConfig struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name,omitempty"`

	VoiceID  string `json:"voice_id,omitempty"`
	Language string `json:"language,omitempty"`

	WebhookURL string `json:"webhook_url,omitempty"`

	EndCallAfterSilenceMS int `json:"end_call_after_silence_ms,omitempty"`
	MaxCallDurationMS     int `json:"max_call_duration_ms,omitempty"`
}

// CallQuery filters ListCalls.
type CallQuery struct {
	Limit int `json:"limit"`
}

// ProviderCall is a provider call record (web or phone).
type ProviderCall struct {
	CallID  string `json:"call_id"`
	AgentID string `json:"agent_id,omitempty"`

	Type   string `json:"call_type,omitempty"`
	Status string `json:"call_status,omitempty"`

	FromNumber string `json:"from_number,omitempty"`
	ToNumber   string `json:"to_number,omitempty"`

	StartTimestampMS int64 `json:"start_timestamp,omitempty"`
	EndTimestampMS   int64 `json:"end_timestamp,omitempty"`

	DisconnectionReason string `json:"disconnection_reason,omitempty"`
}

// DurationSeconds derives the call duration from provider timestamps.
func (c ProviderCall) DurationSeconds() int {
	if c.EndTimestampMS <= c.StartTimestampMS {
		return 0
	}
	return int((c.EndTimestampMS - c.StartTimestampMS) / 1000)
}

// StartedAt converts the provider start timestamp.
func (c ProviderCall) StartedAt() time.Time {
	if c.StartTimestampMS <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.StartTimestampMS).UTC()
}

// BatchCallRequest queues outbound phone calls. Numbers are E.164.
type BatchCallRequest struct {
	Name       string          `json:"name,omitempty"`
	AgentID    string          `json:"override_agent_id,omitempty"`
	FromNumber string          `json:"from_number"`
	Tasks      []BatchCallTask `json:"tasks"`
}

type BatchCallTask struct {
	ToNumber string `json:"to_number"`
}

type BatchCallResult struct {
	BatchCallID string `json:"batch_call_id"`
}

var (
	// ErrInvalidAgent rejects empty/blank agent ids before any network I/O.
	ErrInvalidAgent = errors.New("telephony: invalid agent id")

	// ErrInvalidNumber rejects numbers that are not E.164.
	ErrInvalidNumber = errors.New("telephony: invalid phone number")
)

// UpstreamError carries the provider's HTTP status and body text so failures
// surface with full context instead of being swallowed.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("telephony: upstream returned %d: %s", e.Status, e.Body)
}
