package billing

import "context"

// Store abstracts billing persistence.
//
// Money invariants the implementation must uphold:
//   - Post writes the ledger entry and the profile balance in one transaction
//   - the ledger is append-only (immutable)
//   - a repeated idempotency key returns the original entry without posting
type Store interface {
	// GetProfile returns the profile, or ErrNotFound.
	GetProfile(ctx context.Context, accountID string) (Profile, error)

	// EnsureProfile returns the profile, creating a default row when the
	// account has none yet.
	EnsureProfile(ctx context.Context, accountID, currency string) (Profile, error)

	// UpdateProfile persists processor references, payment status and the
	// next billing date. It never touches the credit balance.
	UpdateProfile(ctx context.Context, p Profile) (Profile, error)

	// Post appends a ledger entry and applies its amount to the profile
	// balance atomically. When the idempotency key was already posted it
	// returns the existing entry, the current profile and applied=false.
	Post(ctx context.Context, e LedgerEntry) (LedgerEntry, Profile, bool, error)

	// ListLedger returns the most recent entries for the account.
	ListLedger(ctx context.Context, accountID string, limit int) ([]LedgerEntry, error)

	// GetSettings returns the account's rate card, ok=false when the
	// account has no override row.
	GetSettings(ctx context.Context, accountID string) (Settings, bool, error)

	// SaveSettings upserts the account's rate card.
	SaveSettings(ctx context.Context, s Settings) (Settings, error)
}
