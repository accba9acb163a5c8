package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresAccountAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeAdminAction}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{AccountID: "a1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogAdminAction(context.Background(), "a1", "u1", "super_admin", "1.2.3.4", "changed rate card", "{}"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("expected ip captured")
	}
	if evs[0].Type != EventTypeAdminAction {
		t.Fatalf("expected admin_action")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled")
	}
}

func TestService_LogPaymentCarriesReference(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogPayment(context.Background(), "a1", "inv_42", "invoice settled", ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 || evs[0].PaymentRef != "inv_42" {
		t.Fatalf("payment ref not captured: %+v", evs)
	}
}
