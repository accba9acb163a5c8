package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"voicedesk/internal/agents"
	"voicedesk/internal/auth"
	"voicedesk/internal/billing"
	"voicedesk/internal/calls"
	"voicedesk/internal/telephony"
	"voicedesk/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Provider telephony.Provider
	Agents   *agents.Directory
	Calls    calls.Repository
	Billing  *billing.Service
	Reports  ReportsService
	Audit    AuditService

	// Redis backs the per-account live call cap. Nil disables the cap.
	Redis              *redis.Client
	MaxConcurrentCalls int
	CallSlotTTL        time.Duration
}

// --- Auth ---

type loginRequest struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: credential validation lives upstream (SSO); this endpoint exchanges
// an already-verified identity for platform tokens.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.AccountID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, account_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.AccountID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Agents ---

func (h Handlers) ListAgents(c *gin.Context) {
	if h.Agents == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "agents not configured"})
		return
	}
	list, err := h.Agents.List(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "agent directory unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": list})
}

func (h Handlers) GetAgent(c *gin.Context) {
	if h.Agents == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "agents not configured"})
		return
	}
	agentID := c.Param("agent_id")
	if agentID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id required"})
		return
	}
	cfg, err := h.Agents.Get(c.Request.Context(), agentID)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, telephony.ErrInvalidAgent) {
			status = http.StatusNotFound
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "agent lookup failed"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// --- Calls ---

type createWebCallRequest struct {
	AgentID string `json:"agent_id"`
}

// CreateWebCall registers a browser call with the provider and returns the
// single-use access token the dashboard needs to attach audio.
//
// A Redis-backed concurrency cap bounds live calls per account; the slot is
// released by CompleteCall, with a TTL guarding against leaks.
func (h Handlers) CreateWebCall(c *gin.Context) {
	if h.Provider == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "provider not configured"})
		return
	}
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	var req createWebCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AgentID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id required"})
		return
	}

	if h.Redis != nil && h.MaxConcurrentCalls > 0 {
		ok, err := utils.AcquireConcurrencyCap(c.Request.Context(), h.Redis, liveCallsKey(accountID), h.MaxConcurrentCalls, h.callSlotTTL())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call cap check failed"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "concurrent call limit reached"})
			return
		}
	}

	wc, err := h.Provider.CreateWebCall(c.Request.Context(), telephony.WebCallRequest{
		AgentID: req.AgentID,
		Metadata: map[string]string{
			"account_id": accountID,
		},
	})
	if err != nil {
		h.releaseCallSlot(c, accountID)
		status := http.StatusBadGateway
		if errors.Is(err, telephony.ErrInvalidAgent) {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "web call registration failed"})
		return
	}

	if h.Calls != nil {
		_, _ = h.Calls.Upsert(c.Request.Context(), calls.Call{
			CallID:    wc.CallID,
			AccountID: accountID,
			AgentID:   req.AgentID,
			Type:      calls.CallTypeWeb,
			Status:    calls.CallStatusRegistered,
			StartedAt: time.Now().UTC(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"call_id":      wc.CallID,
		"access_token": wc.AccessToken,
		"agent_id":     wc.AgentID,
	})
}

type completeCallRequest struct {
	Status              string `json:"status"`
	DurationSeconds     int    `json:"duration_seconds"`
	DisconnectionReason string `json:"disconnection_reason,omitempty"`
}

// CompleteCall finalizes a call record: releases the live-call slot, stores
// the terminal status and charges usage for billable calls. Safe to replay;
// the billing ledger is idempotent per call id.
func (h Handlers) CompleteCall(c *gin.Context) {
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	var req completeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	status := calls.CallStatus(req.Status)
	if status != calls.CallStatusEnded && status != calls.CallStatusError {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status must be ended or error"})
		return
	}

	h.releaseCallSlot(c, accountID)

	var record calls.Call
	if h.Calls != nil {
		existing, err := h.Calls.Get(c.Request.Context(), accountID, callID)
		if err != nil && !errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
			return
		}
		existing.CallID = callID
		existing.AccountID = accountID
		existing.Status = status
		existing.DurationSeconds = req.DurationSeconds
		existing.DisconnectionReason = req.DisconnectionReason
		if existing.EndedAt.IsZero() {
			existing.EndedAt = time.Now().UTC()
		}
		record, err = h.Calls.Upsert(c.Request.Context(), existing)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call update failed"})
			return
		}
	} else {
		record = calls.Call{CallID: callID, AccountID: accountID, Status: status, DurationSeconds: req.DurationSeconds}
	}

	if h.Billing != nil && record.Billable() {
		if _, _, err := h.Billing.RecordCallUsage(c.Request.Context(), accountID, callID, record.DurationSeconds); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "usage charge failed"})
			return
		}
	}

	c.JSON(http.StatusOK, record)
}

// ListCalls returns the account's recent calls, refreshed from the provider
// when it is reachable. Provider outages degrade to the local mirror.
func (h Handlers) ListCalls(c *gin.Context) {
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

	if h.Provider != nil && h.Calls != nil {
		if fetched, err := h.Provider.ListCalls(c.Request.Context(), telephony.CallQuery{Limit: limit}); err == nil {
			for _, pc := range fetched {
				_, _ = h.Calls.Upsert(c.Request.Context(), calls.FromProvider(accountID, pc))
			}
		}
	}

	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	now := time.Now().UTC()
	out, err := h.Calls.List(c.Request.Context(), accountID, now.AddDate(0, -1, 0), now.Add(time.Hour), c.Query("agent_id"), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

type batchCallRequest struct {
	Name       string   `json:"name"`
	FromNumber string   `json:"from_number"`
	AgentID    string   `json:"agent_id"`
	ToNumbers  []string `json:"to_numbers"`
}

// CreateBatchCall queues outbound phone calls to a list of E.164 numbers.
func (h Handlers) CreateBatchCall(c *gin.Context) {
	if h.Provider == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "provider not configured"})
		return
	}
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	var req batchCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	batch := telephony.BatchCallRequest{
		Name:       req.Name,
		FromNumber: req.FromNumber,
		AgentID:    req.AgentID,
	}
	for _, to := range req.ToNumbers {
		batch.Tasks = append(batch.Tasks, telephony.BatchCallTask{ToNumber: to})
	}

	result, err := h.Provider.CreateBatchCall(c.Request.Context(), batch)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, telephony.ErrInvalidNumber) || errors.Is(err, telephony.ErrInvalidAgent) {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	if h.Audit != nil {
		userID, _ := auth.UserID(c.Request.Context())
		_ = h.Audit.LogBatchCall(c.Request.Context(), accountID, userID, req.AgentID, "batch call submitted", "")
	}
	c.JSON(http.StatusOK, result)
}

func (h Handlers) releaseCallSlot(c *gin.Context, accountID string) {
	if h.Redis == nil || h.MaxConcurrentCalls <= 0 {
		return
	}
	_ = utils.ReleaseConcurrencyCap(c.Request.Context(), h.Redis, liveCallsKey(accountID))
}

func (h Handlers) callSlotTTL() time.Duration {
	if h.CallSlotTTL > 0 {
		return h.CallSlotTTL
	}
	return 2 * time.Hour
}

func liveCallsKey(accountID string) string {
	return "calls:live:" + accountID
}
