package calls

import (
	"context"
	"testing"
	"time"

	"voicedesk/internal/telephony"
)

func TestFromProviderMapsTimestamps(t *testing.T) {
	pc := telephony.ProviderCall{
		CallID:              "call_1",
		AgentID:             "agent_1",
		Type:                "web_call",
		Status:              "ended",
		StartTimestampMS:    1_700_000_000_000,
		EndTimestampMS:      1_700_000_125_000,
		DisconnectionReason: "user_hangup",
	}

	c := FromProvider("acct-1", pc)
	if c.AccountID != "acct-1" || c.CallID != "call_1" {
		t.Fatalf("identity not mapped: %+v", c)
	}
	if c.Type != CallTypeWeb || c.Status != CallStatusEnded {
		t.Fatalf("type/status not mapped: %+v", c)
	}
	if c.DurationSeconds != 125 {
		t.Fatalf("duration = %d, want 125", c.DurationSeconds)
	}
	if c.StartedAt.IsZero() || c.EndedAt.IsZero() {
		t.Fatalf("timestamps not mapped: %+v", c)
	}
	if !c.EndedAt.After(c.StartedAt) {
		t.Fatal("ended before started")
	}
}

func TestBillable(t *testing.T) {
	if (Call{Status: CallStatusEnded, DurationSeconds: 30}).Billable() == false {
		t.Fatal("ended call with duration should be billable")
	}
	if (Call{Status: CallStatusError, DurationSeconds: 30}).Billable() {
		t.Fatal("errored call should not be billable")
	}
	if (Call{Status: CallStatusEnded, DurationSeconds: 0}).Billable() {
		t.Fatal("zero-duration call should not be billable")
	}
}

func TestMemoryRepoListFiltersAndSorts(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := []Call{
		{CallID: "c1", AccountID: "acct-1", AgentID: "agent_1", StartedAt: base},
		{CallID: "c2", AccountID: "acct-1", AgentID: "agent_2", StartedAt: base.Add(time.Hour)},
		{CallID: "c3", AccountID: "acct-1", AgentID: "agent_1", StartedAt: base.Add(2 * time.Hour)},
		{CallID: "c4", AccountID: "acct-2", AgentID: "agent_1", StartedAt: base},
	}
	for _, c := range seed {
		if _, err := repo.Upsert(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.List(ctx, "acct-1", base.Add(-time.Hour), base.Add(24*time.Hour), "", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].CallID != "c3" || got[2].CallID != "c1" {
		t.Fatalf("not newest first: %v, %v", got[0].CallID, got[2].CallID)
	}

	got, err = repo.List(ctx, "acct-1", base.Add(-time.Hour), base.Add(24*time.Hour), "agent_1", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("agent filter len = %d, want 2", len(got))
	}
}

func TestMemoryRepoGetEnforcesAccountScope(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, Call{CallID: "c1", AccountID: "acct-1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Get(ctx, "acct-2", "c1"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
