package calls

import (
	"time"

	"voicedesk/internal/telephony"
)

// Call is the tenant-scoped record of an agent call, mirrored from the
// voice provider.
//
// Multi-tenant invariant: AccountID is required on every row.
//
// Money invariant reminder: usage charging references CallID in the billing
// ledger (external_ref) rather than mutating money fields here.
type Call struct {
	CallID    string `json:"call_id" db:"call_id"`
	AccountID string `json:"account_id" db:"account_id"`
	AgentID   string `json:"agent_id" db:"agent_id"`

	Type CallType `json:"call_type" db:"call_type"`

	// FromNumber/ToNumber are set for phone calls only; web calls carry
	// neither leg.
	FromNumber string `json:"from_number,omitempty" db:"from_number"`
	ToNumber   string `json:"to_number,omitempty" db:"to_number"`

	Status CallStatus `json:"status" db:"status"`

	// DisconnectionReason is the provider's reason for an error status.
	DisconnectionReason string `json:"disconnection_reason,omitempty" db:"disconnection_reason"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`

	StartedAt time.Time `json:"started_at" db:"started_at"`
	EndedAt   time.Time `json:"ended_at" db:"ended_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallType string

const (
	CallTypeWeb   CallType = "web_call"
	CallTypePhone CallType = "phone_call"
)

type CallStatus string

// Provider call lifecycle statuses.
const (
	CallStatusRegistered CallStatus = "registered"
	CallStatusOngoing    CallStatus = "ongoing"
	CallStatusEnded      CallStatus = "ended"
	CallStatusError      CallStatus = "error"
)

// FromProvider maps a provider call into the local record for the account.
func FromProvider(accountID string, pc telephony.ProviderCall) Call {
	c := Call{
		CallID:              pc.CallID,
		AccountID:           accountID,
		AgentID:             pc.AgentID,
		Type:                CallType(pc.Type),
		FromNumber:          pc.FromNumber,
		ToNumber:            pc.ToNumber,
		Status:              CallStatus(pc.Status),
		DisconnectionReason: pc.DisconnectionReason,
		DurationSeconds:     pc.DurationSeconds(),
	}
	if !pc.StartedAt().IsZero() {
		c.StartedAt = pc.StartedAt()
	}
	if pc.EndTimestampMS > 0 {
		c.EndedAt = time.UnixMilli(pc.EndTimestampMS).UTC()
	}
	return c
}

// Billable reports whether the call should produce a usage charge.
func (c Call) Billable() bool {
	return c.Status == CallStatusEnded && c.DurationSeconds > 0
}
