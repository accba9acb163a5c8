package reporting

import (
	"context"
	"errors"
	"time"

	"voicedesk/internal/billing"
	"voicedesk/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - methods must enforce account filtering
// - implementations should query immutable sources when possible
//   (billing ledger, call records)
type Repository interface {
	ListCalls(ctx context.Context, accountID string, from, to time.Time, agentID string) ([]calls.Call, error)
	ListLedger(ctx context.Context, accountID string, from, to time.Time) ([]billing.LedgerEntry, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.AccountID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if err := validRange(req.Range); err != nil {
		return CallsSummary{}, err
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.AccountID, req.Range.From, req.Range.To, req.AgentID)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{AccountID: req.AccountID, AgentID: req.AgentID}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		switch c.Type {
		case calls.CallTypeWeb:
			out.WebCalls++
		case calls.CallTypePhone:
			out.PhoneCalls++
		}
		switch c.Status {
		case calls.CallStatusEnded:
			out.EndedCalls++
		case calls.CallStatusError:
			out.ErroredCalls++
		case calls.CallStatusOngoing:
			out.OngoingCalls++
		case calls.CallStatusRegistered:
			// not counted separately
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}

func (s *Service) SpendSummary(ctx context.Context, req SpendSummaryRequest) (SpendSummary, error) {
	if req.AccountID == "" {
		return SpendSummary{}, ErrInvalidRequest
	}
	if err := validRange(req.Range); err != nil {
		return SpendSummary{}, err
	}
	if s.repo == nil {
		return SpendSummary{}, errors.New("reporting: repository not configured")
	}

	entries, err := s.repo.ListLedger(ctx, req.AccountID, req.Range.From, req.Range.To)
	if err != nil {
		return SpendSummary{}, err
	}

	out := SpendSummary{AccountID: req.AccountID, Currency: req.Currency}
	for _, e := range entries {
		if out.Currency == "" {
			out.Currency = e.Currency
		}
		if req.Currency != "" && e.Currency != req.Currency {
			continue
		}

		if e.AmountMinor > 0 {
			out.TotalCreditMinor += e.AmountMinor
		} else {
			out.TotalDebitMinor += -e.AmountMinor
		}

		switch e.Type {
		case billing.EntryTypeUsage:
			out.UsageDebitMinor += -e.AmountMinor
		case billing.EntryTypePayment:
			out.PaymentMinor += e.AmountMinor
		case billing.EntryTypeAdjustment:
			out.AdjustmentMinor += e.AmountMinor
		case billing.EntryTypeUsageReported:
			// offsets usage already counted; not spend on its own
		}
	}
	out.NetDeltaMinor = out.TotalCreditMinor - out.TotalDebitMinor
	if out.Currency == "" {
		out.Currency = "UNKNOWN"
	}
	return out, nil
}

func (s *Service) AgentSummary(ctx context.Context, req AgentSummaryRequest) (AgentSummary, error) {
	if req.AccountID == "" || req.AgentID == "" {
		return AgentSummary{}, ErrInvalidRequest
	}
	if err := validRange(req.Range); err != nil {
		return AgentSummary{}, err
	}
	if s.repo == nil {
		return AgentSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.AccountID, req.Range.From, req.Range.To, req.AgentID)
	if err != nil {
		return AgentSummary{}, err
	}

	out := AgentSummary{AccountID: req.AccountID, AgentID: req.AgentID}
	total := 0
	for _, c := range rows {
		out.CallsHandled++
		total += c.DurationSeconds
		switch c.Status {
		case calls.CallStatusEnded:
			out.CallsEnded++
		case calls.CallStatusError:
			out.CallsErrored++
		}
	}
	if out.CallsHandled > 0 {
		out.CompletionRate = float64(out.CallsEnded) / float64(out.CallsHandled)
		out.AverageDurationSeconds = total / out.CallsHandled
	}
	return out, nil
}

func validRange(r TimeRange) error {
	if r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return ErrInvalidRequest
	}
	return nil
}
