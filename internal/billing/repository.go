package billing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voicedesk/pkg/utils"

	"github.com/google/uuid"
)

// PostgresStore implements Store on Postgres.
//
// Tables:
// - billing_profiles (one row per account, holds the balance projection)
// - billing_ledger   (immutable append-only, UNIQUE (account_id, idempotency_key))
// - billing_settings (per-account rate card overrides)
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) GetProfile(ctx context.Context, accountID string) (Profile, error) {
	const q = `
SELECT account_id, customer_id, subscription_id, payment_status,
       credit_balance_minor, currency, next_billing_date, created_at, updated_at
FROM billing_profiles
WHERE account_id = $1
`
	return scanProfile(s.db.QueryRowContext(ctx, q, accountID))
}

func (s *PostgresStore) EnsureProfile(ctx context.Context, accountID, currency string) (Profile, error) {
	now := s.clock().UTC()
	const q = `
INSERT INTO billing_profiles (
  account_id, customer_id, subscription_id, payment_status,
  credit_balance_minor, currency, next_billing_date, created_at, updated_at
) VALUES ($1, '', '', $2, 0, $3, $4, $5, $5)
ON CONFLICT (account_id) DO UPDATE SET updated_at = billing_profiles.updated_at
RETURNING account_id, customer_id, subscription_id, payment_status,
          credit_balance_minor, currency, next_billing_date, created_at, updated_at
`
	return scanProfile(s.db.QueryRowContext(ctx, q, accountID, PaymentStatusPending, currency, time.Time{}, now))
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	now := s.clock().UTC()
	const q = `
UPDATE billing_profiles
SET customer_id = $2, subscription_id = $3, payment_status = $4,
    next_billing_date = $5, updated_at = $6
WHERE account_id = $1
RETURNING account_id, customer_id, subscription_id, payment_status,
          credit_balance_minor, currency, next_billing_date, created_at, updated_at
`
	out, err := scanProfile(s.db.QueryRowContext(ctx, q,
		p.AccountID, p.CustomerID, p.SubscriptionID, p.PaymentStatus, p.NextBillingDate, now))
	if err != nil {
		return Profile{}, err
	}
	return out, nil
}

func (s *PostgresStore) Post(ctx context.Context, e LedgerEntry) (LedgerEntry, Profile, bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}

	var (
		outEntry LedgerEntry
		outProf  Profile
		applied  bool
	)

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the profile row to serialize concurrent money operations
		// per account.
		prof, err := lockProfile(ctx, tx, e.AccountID)
		if err != nil {
			return err
		}
		if prof.Currency != e.Currency {
			return ErrInvalidArgument
		}

		if existing, ok, err := findEntryByIdempotency(ctx, tx, e.AccountID, e.IdempotencyKey); err != nil {
			return err
		} else if ok {
			outEntry = existing
			outProf = prof
			applied = false
			return nil
		}

		if err := insertEntry(ctx, tx, e); err != nil {
			return err
		}
		prof, err = applyBalanceDelta(ctx, tx, e.AccountID, e.AmountMinor, e.CreatedAt)
		if err != nil {
			return err
		}

		outEntry = e
		outProf = prof
		applied = true
		return nil
	})
	if err != nil {
		return LedgerEntry{}, Profile{}, false, err
	}
	return outEntry, outProf, applied, nil
}

func (s *PostgresStore) ListLedger(ctx context.Context, accountID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, account_id, type, amount_minor, currency, external_ref, idempotency_key, metadata, created_at
FROM billing_ledger
WHERE account_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := s.db.QueryContext(ctx, q, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.AccountID, &e.Type, &e.AmountMinor, &e.Currency,
			&e.ExternalRef, &e.IdempotencyKey, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSettings(ctx context.Context, accountID string) (Settings, bool, error) {
	const q = `
SELECT account_id, currency, setup_fee_minor, monthly_fee_minor,
       base_rate_per_min_minor, usage_multiplier, updated_at
FROM billing_settings
WHERE account_id = $1
`
	var st Settings
	err := s.db.QueryRowContext(ctx, q, accountID).Scan(
		&st.AccountID, &st.Currency, &st.SetupFeeMinor, &st.MonthlyFeeMinor,
		&st.BaseRatePerMinMinor, &st.UsageMultiplier, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Settings{}, false, nil
		}
		return Settings{}, false, err
	}
	return st, true, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, st Settings) (Settings, error) {
	now := s.clock().UTC()
	const q = `
INSERT INTO billing_settings (
  account_id, currency, setup_fee_minor, monthly_fee_minor,
  base_rate_per_min_minor, usage_multiplier, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (account_id)
DO UPDATE SET currency = EXCLUDED.currency,
              setup_fee_minor = EXCLUDED.setup_fee_minor,
              monthly_fee_minor = EXCLUDED.monthly_fee_minor,
              base_rate_per_min_minor = EXCLUDED.base_rate_per_min_minor,
              usage_multiplier = EXCLUDED.usage_multiplier,
              updated_at = EXCLUDED.updated_at
RETURNING account_id, currency, setup_fee_minor, monthly_fee_minor,
          base_rate_per_min_minor, usage_multiplier, updated_at
`
	var out Settings
	err := s.db.QueryRowContext(ctx, q,
		st.AccountID, st.Currency, st.SetupFeeMinor, st.MonthlyFeeMinor,
		st.BaseRatePerMinMinor, st.UsageMultiplier, now,
	).Scan(
		&out.AccountID, &out.Currency, &out.SetupFeeMinor, &out.MonthlyFeeMinor,
		&out.BaseRatePerMinMinor, &out.UsageMultiplier, &out.UpdatedAt,
	)
	if err != nil {
		return Settings{}, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.AccountID, &p.CustomerID, &p.SubscriptionID, &p.PaymentStatus,
		&p.CreditBalanceMinor, &p.Currency, &p.NextBillingDate, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

func lockProfile(ctx context.Context, tx *sql.Tx, accountID string) (Profile, error) {
	const q = `
SELECT account_id, customer_id, subscription_id, payment_status,
       credit_balance_minor, currency, next_billing_date, created_at, updated_at
FROM billing_profiles
WHERE account_id = $1
FOR UPDATE
`
	return scanProfile(tx.QueryRowContext(ctx, q, accountID))
}

func findEntryByIdempotency(ctx context.Context, tx *sql.Tx, accountID, key string) (LedgerEntry, bool, error) {
	const q = `
SELECT id, account_id, type, amount_minor, currency, external_ref, idempotency_key, metadata, created_at
FROM billing_ledger
WHERE account_id = $1 AND idempotency_key = $2
LIMIT 1
`
	var e LedgerEntry
	err := tx.QueryRowContext(ctx, q, accountID, key).Scan(
		&e.ID, &e.AccountID, &e.Type, &e.AmountMinor, &e.Currency,
		&e.ExternalRef, &e.IdempotencyKey, &e.Metadata, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LedgerEntry{}, false, nil
		}
		return LedgerEntry{}, false, err
	}
	return e, true, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e LedgerEntry) error {
	const q = `
INSERT INTO billing_ledger (
  id, account_id, type, amount_minor, currency, external_ref, idempotency_key, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID, e.AccountID, e.Type, e.AmountMinor, e.Currency,
		e.ExternalRef, e.IdempotencyKey, e.Metadata, e.CreatedAt,
	)
	return err
}

func applyBalanceDelta(ctx context.Context, tx *sql.Tx, accountID string, deltaMinor int64, now time.Time) (Profile, error) {
	const q = `
UPDATE billing_profiles
SET credit_balance_minor = credit_balance_minor + $2, updated_at = $3
WHERE account_id = $1
RETURNING account_id, customer_id, subscription_id, payment_status,
          credit_balance_minor, currency, next_billing_date, created_at, updated_at
`
	return scanProfile(tx.QueryRowContext(ctx, q, accountID, deltaMinor, now))
}
