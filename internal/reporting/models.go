package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics.
// Tenant isolation: AccountID is required.
type CallsSummaryRequest struct {
	AccountID string    `json:"account_id"`
	Range     TimeRange `json:"range"`
	AgentID   string    `json:"agent_id,omitempty"`
}

type CallsSummary struct {
	AccountID string `json:"account_id"`
	AgentID   string `json:"agent_id,omitempty"`

	TotalCalls   int `json:"total_calls"`
	WebCalls     int `json:"web_calls"`
	PhoneCalls   int `json:"phone_calls"`
	EndedCalls   int `json:"ended_calls"`
	ErroredCalls int `json:"errored_calls"`
	OngoingCalls int `json:"ongoing_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls int `json:"recorded_calls"`
}

// SpendSummaryRequest requests aggregated spend metrics.
// Spend is derived from immutable billing ledger entries scoped to the account.
type SpendSummaryRequest struct {
	AccountID string    `json:"account_id"`
	Range     TimeRange `json:"range"`
	Currency  string    `json:"currency,omitempty"`
}

type SpendSummary struct {
	AccountID string `json:"account_id"`
	Currency  string `json:"currency"`

	TotalDebitMinor  int64 `json:"total_debit_minor"`
	TotalCreditMinor int64 `json:"total_credit_minor"`
	NetDeltaMinor    int64 `json:"net_delta_minor"`

	UsageDebitMinor int64 `json:"usage_debit_minor"`
	PaymentMinor    int64 `json:"payment_minor"`
	AdjustmentMinor int64 `json:"adjustment_minor"`
}

// AgentSummaryRequest requests per-agent call metrics for the account.
type AgentSummaryRequest struct {
	AccountID string    `json:"account_id"`
	Range     TimeRange `json:"range"`
	AgentID   string    `json:"agent_id"`
}

type AgentSummary struct {
	AccountID string `json:"account_id"`
	AgentID   string `json:"agent_id"`

	CallsHandled int `json:"calls_handled"`
	CallsEnded   int `json:"calls_ended"`
	CallsErrored int `json:"calls_errored"`

	CompletionRate         float64 `json:"completion_rate"`
	AverageDurationSeconds int     `json:"average_duration_seconds"`
}
