package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voicedesk/internal/auth"
	"voicedesk/internal/billing"
	"voicedesk/internal/calls"
	"voicedesk/internal/rbac"
	"voicedesk/internal/reporting"
	"voicedesk/internal/telephony"

	"github.com/gin-gonic/gin"
)

type fakeProvider struct {
	telephony.Provider

	webCall    telephony.WebCall
	webCallErr error
	batchErr   error
}

func (f *fakeProvider) CreateWebCall(ctx context.Context, req telephony.WebCallRequest) (telephony.WebCall, error) {
	if req.AgentID == "" {
		return telephony.WebCall{}, telephony.ErrInvalidAgent
	}
	if f.webCallErr != nil {
		return telephony.WebCall{}, f.webCallErr
	}
	return f.webCall, nil
}

func (f *fakeProvider) CreateBatchCall(ctx context.Context, req telephony.BatchCallRequest) (telephony.BatchCallResult, error) {
	if err := telephony.ValidateBatchCall(req); err != nil {
		return telephony.BatchCallResult{}, err
	}
	if f.batchErr != nil {
		return telephony.BatchCallResult{}, f.batchErr
	}
	return telephony.BatchCallResult{BatchCallID: "batch_1"}, nil
}

func (f *fakeProvider) ListCalls(ctx context.Context, q telephony.CallQuery) ([]telephony.ProviderCall, error) {
	return nil, nil
}

type nopProcessor struct{}

func (nopProcessor) CreateCustomer(ctx context.Context, accountID, email, name string) (string, error) {
	return "cus_" + accountID, nil
}
func (nopProcessor) CreateSubscription(ctx context.Context, customerID string, s billing.Settings) (string, error) {
	return "sub_1", nil
}
func (nopProcessor) ChargeSetupFee(ctx context.Context, customerID string, amountMinor int64, currency string) (string, error) {
	return "pi_1", nil
}
func (nopProcessor) ReportUsage(ctx context.Context, customerID string, amountMinor int64, idempotencyKey string) error {
	return nil
}
func (nopProcessor) CheckoutURL(ctx context.Context, customerID string, amountMinor int64, currency string) (string, error) {
	return "https://checkout.example/s", nil
}
func (nopProcessor) CheckoutStatus(ctx context.Context, sessionID string) (billing.PaymentStatus, int64, error) {
	return billing.PaymentStatusPaid, 1000, nil
}

func testBilling(t *testing.T) (*billing.Service, *billing.MemoryStore) {
	t.Helper()
	store := billing.NewMemoryStore()
	svc := billing.NewService(store, nopProcessor{}, billing.Settings{
		Currency:            "usd",
		BaseRatePerMinMinor: 10,
		UsageMultiplier:     3,
	}, nil)
	if _, err := svc.EnsureCustomer(context.Background(), "acct-1", "a@example.com", "Acme"); err != nil {
		t.Fatal(err)
	}
	return svc, store
}

func asUser(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u1", "acct-1", role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateWebCallReturnsSessionCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := calls.NewMemoryRepo()
	h := Handlers{
		Provider: &fakeProvider{webCall: telephony.WebCall{CallID: "call_1", AccessToken: "tok_1", AgentID: "agent_1"}},
		Calls:    repo,
	}
	r := gin.New()
	r.POST("/calls/web", asUser(rbac.RoleMember), h.CreateWebCall)

	w := doJSON(t, r, http.MethodPost, "/calls/web", gin.H{"agent_id": "agent_1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["call_id"] != "call_1" || resp["access_token"] != "tok_1" {
		t.Fatalf("unexpected response: %v", resp)
	}

	rec, err := repo.Get(context.Background(), "acct-1", "call_1")
	if err != nil {
		t.Fatalf("call record not stored: %v", err)
	}
	if rec.Status != calls.CallStatusRegistered || rec.Type != calls.CallTypeWeb {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestCreateWebCallRejectsMissingAgent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{Provider: &fakeProvider{}}
	r := gin.New()
	r.POST("/calls/web", asUser(rbac.RoleMember), h.CreateWebCall)

	w := doJSON(t, r, http.MethodPost, "/calls/web", gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCompleteCallChargesUsageOnce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := testBilling(t)
	repo := calls.NewMemoryRepo()
	h := Handlers{Calls: repo, Billing: svc}
	r := gin.New()
	r.POST("/calls/:call_id/complete", asUser(rbac.RoleMember), h.CompleteCall)

	body := gin.H{"status": "ended", "duration_seconds": 120}
	for i := 0; i < 2; i++ {
		w := doJSON(t, r, http.MethodPost, "/calls/call_1/complete", body)
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d, body = %s", i, w.Code, w.Body.String())
		}
	}

	prof, err := svc.Balance(context.Background(), "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	// 2 minutes * 10 * 3, charged exactly once.
	if prof.CreditBalanceMinor != -60 {
		t.Fatalf("balance = %d, want -60", prof.CreditBalanceMinor)
	}
}

func TestCompleteCallRejectsNonTerminalStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{Calls: calls.NewMemoryRepo()}
	r := gin.New()
	r.POST("/calls/:call_id/complete", asUser(rbac.RoleMember), h.CompleteCall)

	w := doJSON(t, r, http.MethodPost, "/calls/call_1/complete", gin.H{"status": "ongoing"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateBatchCallValidatesNumbers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{Provider: &fakeProvider{}}
	r := gin.New()
	r.POST("/calls/batch", asUser(rbac.RoleOwner), h.CreateBatchCall)

	w := doJSON(t, r, http.MethodPost, "/calls/batch", gin.H{
		"from_number": "not-a-number",
		"to_numbers":  []string{"+15551230001"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/calls/batch", gin.H{
		"from_number": "+15551230000",
		"to_numbers":  []string{"+15551230001", "+15551230002"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestPaymentWebhookIgnoresUnpaid(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := testBilling(t)
	h := Handlers{Billing: svc}
	r := gin.New()
	r.POST("/webhooks/payments", h.PaymentWebhook)

	w := doJSON(t, r, http.MethodPost, "/webhooks/payments", gin.H{
		"account_id":     "acct-1",
		"payment_status": "pending",
		"amount_minor":   1000,
		"payment_ref":    "inv_1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Applied bool `json:"applied"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Applied {
		t.Fatal("pending payment was applied")
	}

	prof, err := svc.Balance(context.Background(), "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if prof.CreditBalanceMinor != 0 {
		t.Fatalf("balance moved to %d on unpaid event", prof.CreditBalanceMinor)
	}
}

func TestPaymentWebhookAppliesPaid(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := testBilling(t)
	h := Handlers{Billing: svc}
	r := gin.New()
	r.POST("/webhooks/payments", h.PaymentWebhook)

	w := doJSON(t, r, http.MethodPost, "/webhooks/payments", gin.H{
		"account_id":     "acct-1",
		"payment_status": "paid",
		"amount_minor":   1000,
		"payment_ref":    "inv_1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	prof, err := svc.Balance(context.Background(), "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if prof.CreditBalanceMinor != 1000 {
		t.Fatalf("balance = %d, want 1000", prof.CreditBalanceMinor)
	}
}

func TestCallsReportUsesAccountScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := reporting.NewMemoryRepo()
	repo.Calls = []calls.Call{
		{CallID: "c1", AccountID: "acct-1", Type: calls.CallTypeWeb, Status: calls.CallStatusEnded, DurationSeconds: 60, StartedAt: time.Now().Add(-time.Hour)},
		{CallID: "c2", AccountID: "acct-2", Type: calls.CallTypeWeb, Status: calls.CallStatusEnded, DurationSeconds: 60, StartedAt: time.Now().Add(-time.Hour)},
	}
	h := Handlers{Reports: reporting.NewService(repo)}
	r := gin.New()
	r.GET("/reports/calls", asUser(rbac.RoleFinance), h.CallsReport)

	w := doJSON(t, r, http.MethodGet, "/reports/calls", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var out reporting.CallsSummary
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("total calls = %d, want 1", out.TotalCalls)
	}
}
