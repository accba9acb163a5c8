package billing

import (
	"context"
	"errors"
	"testing"
)

type fakeProcessor struct {
	customers     int
	subscriptions int
	setupCharges  []int64
	usageReports  []int64
	checkoutCalls int

	chargeErr      error
	checkoutStatus PaymentStatus
	checkoutAmount int64
}

func (f *fakeProcessor) CreateCustomer(ctx context.Context, accountID, email, name string) (string, error) {
	f.customers++
	return "cus_" + accountID, nil
}

func (f *fakeProcessor) CreateSubscription(ctx context.Context, customerID string, s Settings) (string, error) {
	f.subscriptions++
	return "sub_1", nil
}

func (f *fakeProcessor) ChargeSetupFee(ctx context.Context, customerID string, amountMinor int64, currency string) (string, error) {
	if f.chargeErr != nil {
		return "", f.chargeErr
	}
	f.setupCharges = append(f.setupCharges, amountMinor)
	return "pi_1", nil
}

func (f *fakeProcessor) ReportUsage(ctx context.Context, customerID string, amountMinor int64, idempotencyKey string) error {
	f.usageReports = append(f.usageReports, amountMinor)
	return nil
}

func (f *fakeProcessor) CheckoutURL(ctx context.Context, customerID string, amountMinor int64, currency string) (string, error) {
	f.checkoutCalls++
	return "https://checkout.example/session", nil
}

func (f *fakeProcessor) CheckoutStatus(ctx context.Context, sessionID string) (PaymentStatus, int64, error) {
	if f.checkoutStatus == "" {
		return PaymentStatusPending, f.checkoutAmount, nil
	}
	return f.checkoutStatus, f.checkoutAmount, nil
}

func testDefaults() Settings {
	return Settings{
		Currency:            "usd",
		SetupFeeMinor:       500,
		MonthlyFeeMinor:     2900,
		BaseRatePerMinMinor: 10,
		UsageMultiplier:     3,
	}
}

func newTestService() (*Service, *MemoryStore, *fakeProcessor) {
	store := NewMemoryStore()
	proc := &fakeProcessor{}
	return NewService(store, proc, testDefaults(), nil), store, proc
}

func TestUsageCostMinor(t *testing.T) {
	s := testDefaults()

	cases := []struct {
		name    string
		seconds int
		want    int64
	}{
		{"zero", 0, 0},
		{"negative", -5, 0},
		{"partial minute rounds up", 30, 30},    // 1 min * 10 * 3
		{"exact minute", 60, 30},                // 1 min
		{"just over a minute", 61, 60},          // 2 min
		{"several minutes", 185, 120},           // 4 min
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UsageCostMinor(s, tc.seconds); got != tc.want {
				t.Fatalf("UsageCostMinor(%d) = %d, want %d", tc.seconds, got, tc.want)
			}
		})
	}
}

func TestUsageCostMinorDefaultsMultiplier(t *testing.T) {
	s := testDefaults()
	s.UsageMultiplier = 0
	if got := UsageCostMinor(s, 60); got != 30 {
		t.Fatalf("cost = %d, want 30 (default 3x multiplier)", got)
	}
}

func TestEnsureCustomerIsIdempotent(t *testing.T) {
	svc, _, proc := newTestService()
	ctx := context.Background()

	p1, err := svc.EnsureCustomer(ctx, "acct-1", "a@example.com", "Acme")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	p2, err := svc.EnsureCustomer(ctx, "acct-1", "a@example.com", "Acme")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if p1.CustomerID != p2.CustomerID {
		t.Fatalf("customer id changed: %q vs %q", p1.CustomerID, p2.CustomerID)
	}
	if proc.customers != 1 {
		t.Fatalf("customers created = %d, want 1", proc.customers)
	}
}

func TestSubscribeChargesSetupFee(t *testing.T) {
	svc, _, proc := newTestService()
	ctx := context.Background()

	if _, err := svc.EnsureCustomer(ctx, "acct-1", "a@example.com", "Acme"); err != nil {
		t.Fatal(err)
	}
	prof, err := svc.Subscribe(ctx, "acct-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if prof.SubscriptionID == "" {
		t.Fatal("no subscription id recorded")
	}
	if len(proc.setupCharges) != 1 || proc.setupCharges[0] != 500 {
		t.Fatalf("setup charges = %v, want [500]", proc.setupCharges)
	}
	if prof.NextBillingDate.IsZero() {
		t.Fatal("next billing date not set")
	}
}

func TestSubscribeSkipsZeroSetupFee(t *testing.T) {
	store := NewMemoryStore()
	proc := &fakeProcessor{}
	defaults := testDefaults()
	defaults.SetupFeeMinor = 0
	svc := NewService(store, proc, defaults, nil)
	ctx := context.Background()

	if _, err := svc.EnsureCustomer(ctx, "acct-1", "a@example.com", "Acme"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Subscribe(ctx, "acct-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(proc.setupCharges) != 0 {
		t.Fatalf("setup charges = %v, want none", proc.setupCharges)
	}
}

func TestSubscribeAbortsWhenSetupChargeFails(t *testing.T) {
	svc, _, proc := newTestService()
	proc.chargeErr = errors.New("card declined")
	ctx := context.Background()

	if _, err := svc.EnsureCustomer(ctx, "acct-1", "a@example.com", "Acme"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Subscribe(ctx, "acct-1"); err == nil {
		t.Fatal("expected error")
	}
	if proc.subscriptions != 0 {
		t.Fatalf("subscriptions created = %d, want 0", proc.subscriptions)
	}
}

func TestSubscribeRequiresCustomer(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	if _, err := store.EnsureProfile(ctx, "acct-1", "usd"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Subscribe(ctx, "acct-1"); !errors.Is(err, ErrNoCustomer) {
		t.Fatalf("err = %v, want ErrNoCustomer", err)
	}
}

func TestRecordCallUsageDebitsBalance(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.EnsureCustomer(ctx, "acct-1", "a@example.com", "Acme"); err != nil {
		t.Fatal(err)
	}
	entry, prof, err := svc.RecordCallUsage(ctx, "acct-1", "call_1", 125) // 3 min
	if err != nil {
		t.Fatalf("record usage: %v", err)
	}
	if entry.AmountMinor != -90 {
		t.Fatalf("entry amount = %d, want -90", entry.AmountMinor)
	}
	if prof.CreditBalanceMinor != -90 {
		t.Fatalf("balance = %d, want -90", prof.CreditBalanceMinor)
	}
}

func TestRecordCallUsageIsIdempotentPerCall(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.EnsureCustomer(ctx, "acct-1", "a@example.com", "Acme"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.RecordCallUsage(ctx, "acct-1", "call_1", 60); err != nil {
		t.Fatal(err)
	}
	_, prof, err := svc.RecordCallUsage(ctx, "acct-1", "call_1", 60)
	if err != nil {
		t.Fatal(err)
	}
	if prof.CreditBalanceMinor != -30 {
		t.Fatalf("balance = %d, want -30 (replay must not double-charge)", prof.CreditBalanceMinor)
	}
}

func TestReportOutstandingUsageNoopWhenBalanceNonNegative(t *testing.T) {
	svc, _, proc := newTestService()
	ctx := context.Background()

	if _, err := svc.EnsureCustomer(ctx, "acct-1", "a@example.com", "Acme"); err != nil {
		t.Fatal(err)
	}
	reported, err := svc.ReportOutstandingUsage(ctx, "acct-1")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if reported != 0 || len(proc.usageReports) != 0 {
		t.Fatalf("reported = %d, calls = %v; want no report at zero balance", reported, proc.usageReports)
	}
}

func TestReportOutstandingUsageReportsDeficitOnce(t *testing.T) {
	svc, _, proc := newTestService()
	ctx := context.Background()

	if _, err := svc.EnsureCustomer(ctx, "acct-1", "a@example.com", "Acme"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.RecordCallUsage(ctx, "acct-1", "call_1", 120); err != nil { // -60
		t.Fatal(err)
	}

	reported, err := svc.ReportOutstandingUsage(ctx, "acct-1")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if reported != 60 {
		t.Fatalf("reported = %d, want 60", reported)
	}
	if len(proc.usageReports) != 1 || proc.usageReports[0] != 60 {
		t.Fatalf("usage reports = %v, want [60]", proc.usageReports)
	}

	// The offset entry brings the balance back to zero, so a second run
	// reports nothing.
	prof, err := svc.Balance(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if prof.CreditBalanceMinor != 0 {
		t.Fatalf("balance after report = %d, want 0", prof.CreditBalanceMinor)
	}
	reported, err = svc.ReportOutstandingUsage(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if reported != 0 || len(proc.usageReports) != 1 {
		t.Fatalf("second report = %d, calls = %v; want no further reports", reported, proc.usageReports)
	}
}

func TestRecordPaymentSuccessIgnoresUnsettled(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.EnsureCustomer(ctx, "acct-1", "a@example.com", "Acme"); err != nil {
		t.Fatal(err)
	}
	for _, status := range []PaymentStatus{PaymentStatusPending, PaymentStatusFailed} {
		prof, applied, err := svc.RecordPaymentSuccess(ctx, "acct-1", status, 1000, "inv_1")
		if err != nil {
			t.Fatalf("status %q: %v", status, err)
		}
		if applied {
			t.Fatalf("status %q was applied", status)
		}
		if prof.CreditBalanceMinor != 0 {
			t.Fatalf("status %q moved balance to %d", status, prof.CreditBalanceMinor)
		}
	}
}

func TestRecordPaymentSuccessCreditsBalance(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.EnsureCustomer(ctx, "acct-1", "a@example.com", "Acme"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.RecordCallUsage(ctx, "acct-1", "call_1", 120); err != nil { // -60
		t.Fatal(err)
	}

	prof, applied, err := svc.RecordPaymentSuccess(ctx, "acct-1", PaymentStatusPaid, 1000, "inv_1")
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if !applied {
		t.Fatal("payment not applied")
	}
	if prof.CreditBalanceMinor != 940 {
		t.Fatalf("balance = %d, want 940", prof.CreditBalanceMinor)
	}
	if prof.PaymentStatus != PaymentStatusPaid {
		t.Fatalf("payment status = %q, want paid", prof.PaymentStatus)
	}
	if prof.NextBillingDate.IsZero() {
		t.Fatal("next billing date not advanced")
	}

	// Same payment reference replayed: no double credit.
	prof, applied, err = svc.RecordPaymentSuccess(ctx, "acct-1", PaymentStatusPaid, 1000, "inv_1")
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Fatal("replayed payment was applied again")
	}
	if prof.CreditBalanceMinor != 940 {
		t.Fatalf("balance after replay = %d, want 940", prof.CreditBalanceMinor)
	}
}

func TestConfirmCheckoutSettlesPaidSession(t *testing.T) {
	svc, _, proc := newTestService()
	ctx := context.Background()

	if _, err := svc.EnsureCustomer(ctx, "acct-1", "a@example.com", "Acme"); err != nil {
		t.Fatal(err)
	}

	// Unsettled session first: nothing changes.
	prof, applied, err := svc.ConfirmCheckout(ctx, "acct-1", "cs_1")
	if err != nil {
		t.Fatalf("confirm pending: %v", err)
	}
	if applied || prof.CreditBalanceMinor != 0 {
		t.Fatalf("pending session applied: applied=%v balance=%d", applied, prof.CreditBalanceMinor)
	}

	proc.checkoutStatus = PaymentStatusPaid
	proc.checkoutAmount = 2500
	prof, applied, err = svc.ConfirmCheckout(ctx, "acct-1", "cs_1")
	if err != nil {
		t.Fatalf("confirm paid: %v", err)
	}
	if !applied || prof.CreditBalanceMinor != 2500 {
		t.Fatalf("paid session: applied=%v balance=%d, want applied with 2500", applied, prof.CreditBalanceMinor)
	}

	// The session id doubles as the payment reference; replay is inert.
	prof, applied, err = svc.ConfirmCheckout(ctx, "acct-1", "cs_1")
	if err != nil {
		t.Fatal(err)
	}
	if applied || prof.CreditBalanceMinor != 2500 {
		t.Fatalf("replayed session: applied=%v balance=%d", applied, prof.CreditBalanceMinor)
	}
}

func TestUpdateSettingsRejectsNegativeAmounts(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.UpdateSettings(ctx, Settings{AccountID: "acct-1", SetupFeeMinor: -1})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestEffectiveSettingsFallsBackToDefaults(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	st, err := svc.EffectiveSettings(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.MonthlyFeeMinor != 2900 || st.UsageMultiplier != 3 {
		t.Fatalf("defaults not applied: %+v", st)
	}

	if _, err := store.SaveSettings(ctx, Settings{
		AccountID: "acct-1", Currency: "usd",
		MonthlyFeeMinor: 4900, BaseRatePerMinMinor: 20, UsageMultiplier: 2,
	}); err != nil {
		t.Fatal(err)
	}
	st, err = svc.EffectiveSettings(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.MonthlyFeeMinor != 4900 || st.UsageMultiplier != 2 {
		t.Fatalf("override not applied: %+v", st)
	}
}
