package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a simple in-memory Store useful for tests and early
// development. It holds the same invariants as the Postgres implementation:
// one posting per idempotency key, balance updated with the entry.
//
// NOTE: not intended for production.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]Profile
	ledger   []LedgerEntry
	settings map[string]Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: map[string]Profile{},
		settings: map[string]Settings{},
	}
}

func (s *MemoryStore) GetProfile(ctx context.Context, accountID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[accountID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) EnsureProfile(ctx context.Context, accountID, currency string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[accountID]; ok {
		return p, nil
	}
	now := time.Now().UTC()
	p := Profile{
		AccountID:     accountID,
		PaymentStatus: PaymentStatusPending,
		Currency:      currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.profiles[accountID] = p
	return p, nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.profiles[p.AccountID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	cur.CustomerID = p.CustomerID
	cur.SubscriptionID = p.SubscriptionID
	cur.PaymentStatus = p.PaymentStatus
	cur.NextBillingDate = p.NextBillingDate
	cur.UpdatedAt = time.Now().UTC()
	s.profiles[p.AccountID] = cur
	return cur, nil
}

func (s *MemoryStore) Post(ctx context.Context, e LedgerEntry) (LedgerEntry, Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prof, ok := s.profiles[e.AccountID]
	if !ok {
		return LedgerEntry{}, Profile{}, false, ErrNotFound
	}
	if prof.Currency != e.Currency {
		return LedgerEntry{}, Profile{}, false, ErrInvalidArgument
	}

	for _, existing := range s.ledger {
		if existing.AccountID == e.AccountID && existing.IdempotencyKey == e.IdempotencyKey {
			return existing, prof, false, nil
		}
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.ledger = append(s.ledger, e)

	prof.CreditBalanceMinor += e.AmountMinor
	prof.UpdatedAt = e.CreatedAt
	s.profiles[e.AccountID] = prof

	return e, prof, true, nil
}

func (s *MemoryStore) ListLedger(ctx context.Context, accountID string, limit int) ([]LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []LedgerEntry
	for i := len(s.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if s.ledger[i].AccountID == accountID {
			out = append(out, s.ledger[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) GetSettings(ctx context.Context, accountID string) (Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[accountID]
	return st, ok, nil
}

func (s *MemoryStore) SaveSettings(ctx context.Context, st Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.UpdatedAt = time.Now().UTC()
	s.settings[st.AccountID] = st
	return st, nil
}
