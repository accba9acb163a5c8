package calls

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("call not found")

// Repository stores mirrored call records.
type Repository interface {
	// Upsert inserts or refreshes the record for a call id.
	Upsert(ctx context.Context, c Call) (Call, error)

	// Get returns a call scoped to the account, or ErrNotFound.
	Get(ctx context.Context, accountID, callID string) (Call, error)

	// List returns the account's calls within the window, newest first.
	// agentID narrows to one agent when non-empty.
	List(ctx context.Context, accountID string, from, to time.Time, agentID string, limit int) ([]Call, error)
}

// PostgresRepo implements Repository on the calls table.
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const callColumns = `
call_id, account_id, agent_id, call_type, from_number, to_number, status,
disconnection_reason, duration_seconds, recording_url, started_at, ended_at,
created_at, updated_at`

func (r *PostgresRepo) Upsert(ctx context.Context, c Call) (Call, error) {
	now := r.clock().UTC()
	const q = `
INSERT INTO calls (
  call_id, account_id, agent_id, call_type, from_number, to_number, status,
  disconnection_reason, duration_seconds, recording_url, started_at, ended_at,
  created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
ON CONFLICT (call_id)
DO UPDATE SET status = EXCLUDED.status,
              disconnection_reason = EXCLUDED.disconnection_reason,
              duration_seconds = EXCLUDED.duration_seconds,
              recording_url = EXCLUDED.recording_url,
              started_at = EXCLUDED.started_at,
              ended_at = EXCLUDED.ended_at,
              updated_at = EXCLUDED.updated_at
RETURNING` + callColumns
	return scanCall(r.db.QueryRowContext(ctx, q,
		c.CallID, c.AccountID, c.AgentID, c.Type, c.FromNumber, c.ToNumber, c.Status,
		c.DisconnectionReason, c.DurationSeconds, c.RecordingURL, c.StartedAt, c.EndedAt, now,
	))
}

func (r *PostgresRepo) Get(ctx context.Context, accountID, callID string) (Call, error) {
	const q = `SELECT` + callColumns + `
FROM calls
WHERE account_id = $1 AND call_id = $2`
	return scanCall(r.db.QueryRowContext(ctx, q, accountID, callID))
}

func (r *PostgresRepo) List(ctx context.Context, accountID string, from, to time.Time, agentID string, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT` + callColumns + `
FROM calls
WHERE account_id = $1
  AND started_at >= $2 AND started_at < $3
  AND ($4 = '' OR agent_id = $4)
ORDER BY started_at DESC
LIMIT $5`
	rows, err := r.db.QueryContext(ctx, q, accountID, from, to, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var c Call
	err := row.Scan(
		&c.CallID, &c.AccountID, &c.AgentID, &c.Type, &c.FromNumber, &c.ToNumber, &c.Status,
		&c.DisconnectionReason, &c.DurationSeconds, &c.RecordingURL, &c.StartedAt, &c.EndedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	return c, nil
}

// MemoryRepo is an in-memory Repository for tests and early development.
type MemoryRepo struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{calls: map[string]Call{}}
}

func (r *MemoryRepo) Upsert(ctx context.Context, c Call) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := r.calls[c.CallID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.calls[c.CallID] = c
	return c, nil
}

func (r *MemoryRepo) Get(ctx context.Context, accountID, callID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok || c.AccountID != accountID {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) List(ctx context.Context, accountID string, from, to time.Time, agentID string, limit int) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []Call
	for _, c := range r.calls {
		if c.AccountID != accountID {
			continue
		}
		if agentID != "" && c.AgentID != agentID {
			continue
		}
		if c.StartedAt.Before(from) || !c.StartedAt.Before(to) {
			continue
		}
		out = append(out, c)
	}
	// newest first
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].StartedAt.After(out[i].StartedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
