package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"voicedesk/internal/auth"
	"voicedesk/internal/billing"

	"github.com/gin-gonic/gin"
)

// AuditService is the audit surface handlers need; best-effort, never on the
// critical path.
type AuditService interface {
	LogAdminAction(ctx context.Context, accountID, actorUserID, actorRole, ip, message, metadata string) error
	LogBillingChange(ctx context.Context, accountID, actorUserID, actorRole, ip, message, metadata string) error
	LogPayment(ctx context.Context, accountID, paymentRef, message, metadata string) error
	LogBatchCall(ctx context.Context, accountID, actorUserID, agentID, message, metadata string) error
}

type enrollRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// EnrollBilling creates the processor customer for the account.
func (h Handlers) EnrollBilling(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Email == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "email required"})
		return
	}
	prof, err := h.Billing.EnsureCustomer(c.Request.Context(), accountID, req.Email, req.Name)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "billing enrollment failed"})
		return
	}
	c.JSON(http.StatusOK, prof)
}

// Subscribe attaches the recurring plan (fixed + metered) to the account.
func (h Handlers) Subscribe(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	prof, err := h.Billing.Subscribe(c.Request.Context(), accountID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrNoCustomer):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "enroll billing first"})
		case errors.Is(err, billing.ErrAlreadySubscribed):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "already subscribed"})
		default:
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "subscription failed"})
		}
		return
	}
	c.JSON(http.StatusOK, prof)
}

// GetBalance returns the account's billing profile and credit balance.
func (h Handlers) GetBalance(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	prof, err := h.Billing.Balance(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no billing profile"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
		return
	}
	c.JSON(http.StatusOK, prof)
}

// GetLedger returns recent credit balance movements.
func (h Handlers) GetLedger(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be 1..500"})
			return
		}
		limit = n
	}
	entries, err := h.Billing.Ledger(c.Request.Context(), accountID, limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ledger lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type checkoutRequest struct {
	AmountMinor int64 `json:"amount_minor"`
}

// CreateCheckout returns a hosted top-up session URL.
func (h Handlers) CreateCheckout(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	url, err := h.Billing.CheckoutURL(c.Request.Context(), accountID, req.AmountMinor)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidArgument):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "amount_minor must be positive"})
		case errors.Is(err, billing.ErrNoCustomer):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "enroll billing first"})
		default:
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "checkout creation failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// PaymentSuccess settles a hosted checkout session after the customer is
// redirected back with ?session_id=... The processor is the source of truth
// for the session's payment state; unsettled sessions change nothing.
func (h Handlers) PaymentSuccess(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	prof, applied, err := h.Billing.ConfirmCheckout(c.Request.Context(), accountID, sessionID)
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no billing profile"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "checkout confirmation failed"})
		return
	}
	if applied && h.Audit != nil {
		_ = h.Audit.LogPayment(c.Request.Context(), accountID, sessionID, "checkout settled", "")
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "credit_balance_minor": prof.CreditBalanceMinor})
}

// ReportUsage pushes the calling account's outstanding usage to the
// processor. No-op when the balance is non-negative.
func (h Handlers) ReportUsage(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	reported, err := h.Billing.ReportOutstandingUsage(c.Request.Context(), accountID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no billing profile"})
		case errors.Is(err, billing.ErrNoCustomer):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "enroll billing first"})
		default:
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "usage report failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"reported_minor": reported})
}

type paymentEventRequest struct {
	AccountID     string `json:"account_id"`
	PaymentStatus string `json:"payment_status"`
	AmountMinor   int64  `json:"amount_minor"`
	PaymentRef    string `json:"payment_ref"`
}

// PaymentWebhook records processor payment outcomes. Only settled payments
// ("paid") move the credit balance; everything else is logged and dropped.
//
// NOTE: protect with processor signature validation at the edge.
func (h Handlers) PaymentWebhook(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	var req paymentEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	prof, applied, err := h.Billing.RecordPaymentSuccess(
		c.Request.Context(), req.AccountID, billing.PaymentStatus(req.PaymentStatus), req.AmountMinor, req.PaymentRef)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidArgument) || errors.Is(err, billing.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payment event"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "payment processing failed"})
		return
	}
	if h.Audit != nil {
		msg := "payment ignored: " + req.PaymentStatus
		if applied {
			msg = "payment settled"
		}
		_ = h.Audit.LogPayment(c.Request.Context(), req.AccountID, req.PaymentRef, msg, "")
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "credit_balance_minor": prof.CreditBalanceMinor})
}

// --- Admin ---

type settingsRequest struct {
	Currency            string `json:"currency"`
	SetupFeeMinor       int64  `json:"setup_fee_minor"`
	MonthlyFeeMinor     int64  `json:"monthly_fee_minor"`
	BaseRatePerMinMinor int64  `json:"base_rate_per_min_minor"`
	UsageMultiplier     int64  `json:"usage_multiplier"`
}

// AdminUpdateSettings upserts an account's rate card.
// RBAC: owner or super_admin.
func (h Handlers) AdminUpdateSettings(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	accountID := c.Param("account_id")
	if accountID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "account_id required"})
		return
	}
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	st, err := h.Billing.UpdateSettings(c.Request.Context(), billing.Settings{
		AccountID:           accountID,
		Currency:            req.Currency,
		SetupFeeMinor:       req.SetupFeeMinor,
		MonthlyFeeMinor:     req.MonthlyFeeMinor,
		BaseRatePerMinMinor: req.BaseRatePerMinMinor,
		UsageMultiplier:     req.UsageMultiplier,
	})
	if err != nil {
		if errors.Is(err, billing.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "amounts must be non-negative"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "settings update failed"})
		return
	}
	if h.Audit != nil {
		userID, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		_ = h.Audit.LogBillingChange(c.Request.Context(), accountID, userID, role, c.ClientIP(), "rate card updated", "")
	}
	c.JSON(http.StatusOK, st)
}

// AdminGetSettings returns an account's effective rate card (stored
// overrides merged with environment defaults).
func (h Handlers) AdminGetSettings(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	accountID := c.Param("account_id")
	if accountID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "account_id required"})
		return
	}
	st, err := h.Billing.EffectiveSettings(c.Request.Context(), accountID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "settings lookup failed"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// AdminReportUsage pushes an account's outstanding usage to the processor.
// No-op when the balance is non-negative.
func (h Handlers) AdminReportUsage(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	accountID := c.Param("account_id")
	if accountID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "account_id required"})
		return
	}
	reported, err := h.Billing.ReportOutstandingUsage(c.Request.Context(), accountID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no billing profile"})
		case errors.Is(err, billing.ErrNoCustomer):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "enroll billing first"})
		default:
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "usage report failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"reported_minor": reported})
}
