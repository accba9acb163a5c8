package reporting

import (
	"context"
	"database/sql"
	"time"

	"voicedesk/internal/billing"
	"voicedesk/internal/calls"
)

// PostgresRepo reads report source rows straight from the calls mirror and
// the billing ledger. Both are append-mostly, so summaries stay stable when
// replayed over the same window.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) ListCalls(ctx context.Context, accountID string, from, to time.Time, agentID string) ([]calls.Call, error) {
	const q = `
SELECT call_id, account_id, agent_id, call_type, from_number, to_number, status,
       disconnection_reason, duration_seconds, recording_url, started_at, ended_at,
       created_at, updated_at
FROM calls
WHERE account_id = $1
  AND started_at >= $2 AND started_at < $3
  AND ($4 = '' OR agent_id = $4)
ORDER BY started_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, accountID, from, to, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.Call
	for rows.Next() {
		var c calls.Call
		if err := rows.Scan(
			&c.CallID, &c.AccountID, &c.AgentID, &c.Type, &c.FromNumber, &c.ToNumber, &c.Status,
			&c.DisconnectionReason, &c.DurationSeconds, &c.RecordingURL, &c.StartedAt, &c.EndedAt,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListLedger(ctx context.Context, accountID string, from, to time.Time) ([]billing.LedgerEntry, error) {
	const q = `
SELECT id, account_id, type, amount_minor, currency, external_ref, idempotency_key, metadata, created_at
FROM billing_ledger
WHERE account_id = $1
  AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.LedgerEntry
	for rows.Next() {
		var e billing.LedgerEntry
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
