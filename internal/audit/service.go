package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.AccountID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogAdminAction records a privileged action (including hidden roles).
func (s *Service) LogAdminAction(ctx context.Context, accountID, actorUserID, actorRole, ip, message, metadata string) error {
	return s.Append(ctx, Event{
		AccountID:   accountID,
		Type:        EventTypeAdminAction,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Message:     message,
		Metadata:    metadata,
	})
}

// LogBillingChange records a rate-card or subscription mutation.
func (s *Service) LogBillingChange(ctx context.Context, accountID, actorUserID, actorRole, ip, message, metadata string) error {
	return s.Append(ctx, Event{
		AccountID:   accountID,
		Type:        EventTypeBillingChange,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Message:     message,
		Metadata:    metadata,
	})
}

// LogPayment records a processor payment outcome against the account.
func (s *Service) LogPayment(ctx context.Context, accountID, paymentRef, message, metadata string) error {
	return s.Append(ctx, Event{
		AccountID:  accountID,
		Type:       EventTypePayment,
		PaymentRef: paymentRef,
		Message:    message,
		Metadata:   metadata,
	})
}

// LogBatchCall records the submission of an outbound batch.
func (s *Service) LogBatchCall(ctx context.Context, accountID, actorUserID, agentID, message, metadata string) error {
	return s.Append(ctx, Event{
		AccountID:   accountID,
		Type:        EventTypeBatchCall,
		ActorUserID: actorUserID,
		AgentID:     agentID,
		Message:     message,
		Metadata:    metadata,
	})
}
