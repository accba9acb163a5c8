package httpapi

import (
	"context"
	"net/http"
	"time"

	"voicedesk/internal/auth"
	"voicedesk/internal/reporting"

	"github.com/gin-gonic/gin"
)

// ReportsService is the reporting surface exposed over HTTP.
type ReportsService interface {
	CallsSummary(ctx context.Context, req reporting.CallsSummaryRequest) (reporting.CallsSummary, error)
	SpendSummary(ctx context.Context, req reporting.SpendSummaryRequest) (reporting.SpendSummary, error)
	AgentSummary(ctx context.Context, req reporting.AgentSummaryRequest) (reporting.AgentSummary, error)
}

func parseRange(c *gin.Context) (reporting.TimeRange, bool) {
	now := time.Now().UTC()
	out := reporting.TimeRange{From: now.AddDate(0, -1, 0), To: now}

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return reporting.TimeRange{}, false
		}
		out.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return reporting.TimeRange{}, false
		}
		out.To = t
	}
	return out, true
}

func (h Handlers) CallsReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		AccountID: accountID,
		Range:     rng,
		AgentID:   c.Query("agent_id"),
	})
	if err != nil {
		status := http.StatusInternalServerError
		if err == reporting.ErrInvalidRequest {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "calls report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) SpendReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.SpendSummary(c.Request.Context(), reporting.SpendSummaryRequest{
		AccountID: accountID,
		Range:     rng,
		Currency:  c.Query("currency"),
	})
	if err != nil {
		status := http.StatusInternalServerError
		if err == reporting.ErrInvalidRequest {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "spend report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) AgentReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil || accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	agentID := c.Param("agent_id")
	if agentID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id required"})
		return
	}
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.AgentSummary(c.Request.Context(), reporting.AgentSummaryRequest{
		AccountID: accountID,
		Range:     rng,
		AgentID:   agentID,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if err == reporting.ErrInvalidRequest {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "agent report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}
