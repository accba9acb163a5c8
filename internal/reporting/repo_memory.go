package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"voicedesk/internal/billing"
	"voicedesk/internal/calls"
)

// MemoryRepo is a simple in-memory reporting repository for tests and early
// development. It enforces account isolation on reads.
type MemoryRepo struct {
	mu sync.Mutex

	Calls  []calls.Call
	Ledger []billing.LedgerEntry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(ctx context.Context, accountID string, from, to time.Time, agentID string) ([]calls.Call, error) {
	if accountID == "" {
		return nil, errors.New("account_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Call, 0)
	for _, c := range r.Calls {
		if c.AccountID != accountID {
			continue
		}
		if !c.StartedAt.IsZero() {
			if c.StartedAt.Before(from) || !c.StartedAt.Before(to) {
				continue
			}
		}
		if agentID != "" && c.AgentID != agentID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *MemoryRepo) ListLedger(ctx context.Context, accountID string, from, to time.Time) ([]billing.LedgerEntry, error) {
	if accountID == "" {
		return nil, errors.New("account_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]billing.LedgerEntry, 0)
	for _, e := range r.Ledger {
		if e.AccountID != accountID {
			continue
		}
		if !e.CreatedAt.IsZero() {
			if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}
