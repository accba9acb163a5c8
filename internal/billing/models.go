package billing

import (
	"errors"
	"time"
)

// Billing models are tenant-scoped (account_id required everywhere).
// Amounts are expressed in minor units (e.g., cents) using int64.

// Profile is the per-account billing state: the processor references and the
// prepaid credit balance.
//
// Invariant: CreditBalanceMinor must be derived from immutable ledger entries.
// No code should ever mutate the balance without writing a corresponding
// ledger entry in the same transaction.
type Profile struct {
	AccountID string `json:"account_id" db:"account_id"`

	// Processor references. Empty until the account is enrolled.
	CustomerID     string `json:"customer_id,omitempty" db:"customer_id"`
	SubscriptionID string `json:"subscription_id,omitempty" db:"subscription_id"`

	// PaymentStatus mirrors the processor's view of the latest invoice.
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`

	// CreditBalanceMinor goes negative as calls accrue cost and is restored
	// by settled payments. Negative balance is what gets reported as usage.
	CreditBalanceMinor int64  `json:"credit_balance_minor" db:"credit_balance_minor"`
	Currency           string `json:"currency" db:"currency"`

	NextBillingDate time.Time `json:"next_billing_date" db:"next_billing_date"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// LedgerEntry is an immutable append-only entry. Each row represents a
// signed movement of the account's credit balance.
type LedgerEntry struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"account_id"`

	// Type categorizes the ledger entry. Keep stable.
	Type EntryType `json:"type" db:"type"`

	// AmountMinor is the signed amount in minor units (e.g., cents).
	// Credits are positive, usage charges are negative.
	AmountMinor int64  `json:"amount_minor" db:"amount_minor"`
	Currency    string `json:"currency" db:"currency"`

	// ExternalRef is optional: call_id, invoice_id, processor event id, etc.
	ExternalRef string `json:"external_ref,omitempty" db:"external_ref"`

	// IdempotencyKey is required for safe retries of money-posting operations.
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	// Metadata is optional JSON for audit/debug (store as JSONB in Postgres).
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	// EntryTypePayment credits the balance when an invoice settles.
	EntryTypePayment EntryType = "payment"
	// EntryTypeUsage debits the balance for a completed call.
	EntryTypeUsage EntryType = "usage"
	// EntryTypeUsageReported offsets a negative balance once it has been
	// pushed to the processor as metered usage.
	EntryTypeUsageReported EntryType = "usage_reported"
	// EntryTypeAdjustment covers manual operator corrections.
	EntryTypeAdjustment EntryType = "adjustment"
)

// Settings is the account's rate card: the recurring plan amounts and the
// per-minute usage rate. Absent a per-account row, platform defaults apply.
type Settings struct {
	AccountID string `json:"account_id" db:"account_id"`

	Currency string `json:"currency" db:"currency"`

	// SetupFeeMinor is a one-time enrollment charge. Zero means no charge.
	SetupFeeMinor int64 `json:"setup_fee_minor" db:"setup_fee_minor"`

	// MonthlyFeeMinor is the fixed recurring subscription amount.
	MonthlyFeeMinor int64 `json:"monthly_fee_minor" db:"monthly_fee_minor"`

	// BaseRatePerMinMinor is the provider cost per started minute; the
	// customer price is this times UsageMultiplier.
	BaseRatePerMinMinor int64 `json:"base_rate_per_min_minor" db:"base_rate_per_min_minor"`
	UsageMultiplier     int64 `json:"usage_multiplier" db:"usage_multiplier"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNoCustomer        = errors.New("account has no billing customer")
	ErrAlreadySubscribed = errors.New("account already has a subscription")
)
