package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service reconciles account billing state with the payment processor.
//
// Money invariants:
// - no balance change without a ledger entry, posted in one transaction
// - the ledger is append-only (immutable)
// - amounts are minor units (int64) end to end; no floats touch money
//
// Reconciliation rules:
// - usage is reported to the processor only while the credit balance is
//   negative; a non-negative balance reports nothing
// - a payment credits the balance only when its status is "paid"
type Service struct {
	store     Store
	processor Processor
	defaults  Settings
	log       *slog.Logger
	clock     func() time.Time
}

func NewService(store Store, processor Processor, defaults Settings, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     store,
		processor: processor,
		defaults:  defaults,
		log:       log,
		clock:     time.Now,
	}
}

// EnsureCustomer enrolls the account with the processor if it is not
// already enrolled. Safe to call repeatedly.
func (s *Service) EnsureCustomer(ctx context.Context, accountID, email, name string) (Profile, error) {
	if accountID == "" {
		return Profile{}, ErrInvalidArgument
	}
	prof, err := s.store.EnsureProfile(ctx, accountID, s.defaults.Currency)
	if err != nil {
		return Profile{}, err
	}
	if prof.CustomerID != "" {
		return prof, nil
	}

	customerID, err := s.processor.CreateCustomer(ctx, accountID, email, name)
	if err != nil {
		return Profile{}, err
	}
	prof.CustomerID = customerID
	prof, err = s.store.UpdateProfile(ctx, prof)
	if err != nil {
		return Profile{}, err
	}
	s.log.Info("billing customer created", "account_id", accountID, "customer_id", customerID)
	return prof, nil
}

// Subscribe attaches the recurring plan to an enrolled account: a fixed
// monthly item plus a metered usage item. When the rate card carries a
// setup fee it is collected first; a failed setup charge aborts the
// subscription.
func (s *Service) Subscribe(ctx context.Context, accountID string) (Profile, error) {
	if accountID == "" {
		return Profile{}, ErrInvalidArgument
	}
	prof, err := s.store.GetProfile(ctx, accountID)
	if err != nil {
		return Profile{}, err
	}
	if prof.CustomerID == "" {
		return Profile{}, ErrNoCustomer
	}
	if prof.SubscriptionID != "" {
		return Profile{}, ErrAlreadySubscribed
	}

	rates, err := s.EffectiveSettings(ctx, accountID)
	if err != nil {
		return Profile{}, err
	}

	if rates.SetupFeeMinor > 0 {
		ref, err := s.processor.ChargeSetupFee(ctx, prof.CustomerID, rates.SetupFeeMinor, rates.Currency)
		if err != nil {
			return Profile{}, fmt.Errorf("setup fee: %w", err)
		}
		s.log.Info("setup fee charged",
			"account_id", accountID, "amount_minor", rates.SetupFeeMinor, "payment_ref", ref)
	}

	subID, err := s.processor.CreateSubscription(ctx, prof.CustomerID, rates)
	if err != nil {
		return Profile{}, err
	}

	prof.SubscriptionID = subID
	prof.NextBillingDate = s.clock().UTC().AddDate(0, 1, 0)
	prof, err = s.store.UpdateProfile(ctx, prof)
	if err != nil {
		return Profile{}, err
	}
	s.log.Info("subscription created", "account_id", accountID, "subscription_id", subID)
	return prof, nil
}

// RecordCallUsage debits the credit balance for a completed call. The call
// id doubles as the idempotency key, so replaying a provider webhook never
// double-charges.
func (s *Service) RecordCallUsage(ctx context.Context, accountID, callID string, durationSeconds int) (LedgerEntry, Profile, error) {
	if accountID == "" || callID == "" {
		return LedgerEntry{}, Profile{}, ErrInvalidArgument
	}

	rates, err := s.EffectiveSettings(ctx, accountID)
	if err != nil {
		return LedgerEntry{}, Profile{}, err
	}
	cost := UsageCostMinor(rates, durationSeconds)
	if cost == 0 {
		prof, err := s.store.GetProfile(ctx, accountID)
		return LedgerEntry{}, prof, err
	}

	entry := LedgerEntry{
		AccountID:      accountID,
		Type:           EntryTypeUsage,
		AmountMinor:    -cost,
		Currency:       rates.Currency,
		ExternalRef:    callID,
		IdempotencyKey: "usage:" + callID,
	}
	posted, prof, applied, err := s.store.Post(ctx, entry)
	if err != nil {
		return LedgerEntry{}, Profile{}, err
	}
	if applied {
		s.log.Info("call usage recorded",
			"account_id", accountID, "call_id", callID,
			"duration_seconds", durationSeconds, "cost_minor", cost,
			"balance_minor", prof.CreditBalanceMinor)
	}
	return posted, prof, nil
}

// ReportOutstandingUsage pushes accrued usage to the processor. It is a
// no-op while the balance is non-negative. On success the reported amount
// is posted back as an offsetting entry so the same usage is never
// reported twice.
func (s *Service) ReportOutstandingUsage(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, ErrInvalidArgument
	}
	prof, err := s.store.GetProfile(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if prof.CreditBalanceMinor >= 0 {
		return 0, nil
	}
	if prof.CustomerID == "" {
		return 0, ErrNoCustomer
	}

	outstanding := -prof.CreditBalanceMinor
	key := fmt.Sprintf("usage_report:%s:%d", accountID, prof.UpdatedAt.UnixNano())

	if err := s.processor.ReportUsage(ctx, prof.CustomerID, outstanding, key); err != nil {
		return 0, err
	}

	entry := LedgerEntry{
		AccountID:      accountID,
		Type:           EntryTypeUsageReported,
		AmountMinor:    outstanding,
		Currency:       prof.Currency,
		ExternalRef:    key,
		IdempotencyKey: key,
	}
	if _, _, _, err := s.store.Post(ctx, entry); err != nil {
		return 0, err
	}
	s.log.Info("usage reported", "account_id", accountID, "amount_minor", outstanding)
	return outstanding, nil
}

// RecordPaymentSuccess credits the balance for a settled payment. Any
// status other than "paid" changes nothing and reports applied=false.
func (s *Service) RecordPaymentSuccess(ctx context.Context, accountID string, status PaymentStatus, amountMinor int64, paymentRef string) (Profile, bool, error) {
	if accountID == "" || paymentRef == "" {
		return Profile{}, false, ErrInvalidArgument
	}
	if amountMinor <= 0 {
		return Profile{}, false, ErrInvalidArgument
	}

	prof, err := s.store.GetProfile(ctx, accountID)
	if err != nil {
		return Profile{}, false, err
	}
	if status != PaymentStatusPaid {
		s.log.Warn("payment not settled, ignoring",
			"account_id", accountID, "status", string(status), "payment_ref", paymentRef)
		return prof, false, nil
	}

	entry := LedgerEntry{
		AccountID:      accountID,
		Type:           EntryTypePayment,
		AmountMinor:    amountMinor,
		Currency:       prof.Currency,
		ExternalRef:    paymentRef,
		IdempotencyKey: "payment:" + paymentRef,
	}
	_, prof, applied, err := s.store.Post(ctx, entry)
	if err != nil {
		return Profile{}, false, err
	}
	if !applied {
		return prof, false, nil
	}

	prof.PaymentStatus = PaymentStatusPaid
	now := s.clock().UTC()
	if prof.NextBillingDate.Before(now) {
		prof.NextBillingDate = now.AddDate(0, 1, 0)
	}
	prof, err = s.store.UpdateProfile(ctx, prof)
	if err != nil {
		return Profile{}, false, err
	}
	s.log.Info("payment recorded",
		"account_id", accountID, "amount_minor", amountMinor, "payment_ref", paymentRef)
	return prof, true, nil
}

// ConfirmCheckout settles a returned hosted-checkout session: it asks the
// processor for the session's payment state and credits the balance only
// when the session is paid. Replaying the same session id applies nothing.
func (s *Service) ConfirmCheckout(ctx context.Context, accountID, sessionID string) (Profile, bool, error) {
	if accountID == "" || sessionID == "" {
		return Profile{}, false, ErrInvalidArgument
	}
	status, amountMinor, err := s.processor.CheckoutStatus(ctx, sessionID)
	if err != nil {
		return Profile{}, false, fmt.Errorf("checkout lookup: %w", err)
	}
	if status != PaymentStatusPaid {
		prof, err := s.store.GetProfile(ctx, accountID)
		if err != nil {
			return Profile{}, false, err
		}
		s.log.Warn("checkout session not settled, ignoring",
			"account_id", accountID, "session_id", sessionID, "status", string(status))
		return prof, false, nil
	}
	return s.RecordPaymentSuccess(ctx, accountID, status, amountMinor, sessionID)
}

// CheckoutURL returns a hosted top-up session for the account.
func (s *Service) CheckoutURL(ctx context.Context, accountID string, amountMinor int64) (string, error) {
	if accountID == "" || amountMinor <= 0 {
		return "", ErrInvalidArgument
	}
	prof, err := s.store.GetProfile(ctx, accountID)
	if err != nil {
		return "", err
	}
	if prof.CustomerID == "" {
		return "", ErrNoCustomer
	}
	return s.processor.CheckoutURL(ctx, prof.CustomerID, amountMinor, prof.Currency)
}

// Balance returns the account's current profile.
func (s *Service) Balance(ctx context.Context, accountID string) (Profile, error) {
	if accountID == "" {
		return Profile{}, ErrInvalidArgument
	}
	return s.store.GetProfile(ctx, accountID)
}

// Ledger returns the most recent ledger entries for the account.
func (s *Service) Ledger(ctx context.Context, accountID string, limit int) ([]LedgerEntry, error) {
	if accountID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.ListLedger(ctx, accountID, limit)
}

// EffectiveSettings resolves the account's rate card, falling back to the
// platform defaults when no override row exists.
func (s *Service) EffectiveSettings(ctx context.Context, accountID string) (Settings, error) {
	st, ok, err := s.store.GetSettings(ctx, accountID)
	if err != nil {
		return Settings{}, err
	}
	if !ok {
		st = s.defaults
		st.AccountID = accountID
	}
	if st.UsageMultiplier <= 0 {
		st.UsageMultiplier = defaultUsageMultiplier
	}
	if st.Currency == "" {
		st.Currency = s.defaults.Currency
	}
	return st, nil
}

// UpdateSettings upserts the account's rate card. Negative amounts are
// rejected.
func (s *Service) UpdateSettings(ctx context.Context, st Settings) (Settings, error) {
	if st.AccountID == "" {
		return Settings{}, ErrInvalidArgument
	}
	if st.SetupFeeMinor < 0 || st.MonthlyFeeMinor < 0 || st.BaseRatePerMinMinor < 0 {
		return Settings{}, ErrInvalidArgument
	}
	if st.UsageMultiplier <= 0 {
		st.UsageMultiplier = defaultUsageMultiplier
	}
	if st.Currency == "" {
		st.Currency = s.defaults.Currency
	}
	return s.store.SaveSettings(ctx, st)
}
