package main

import (
	"voicedesk/internal/auth"
	"voicedesk/internal/billing"
	"voicedesk/internal/httpapi"
	"voicedesk/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Payment processor webhooks (public).
	// NOTE: protect with processor signature validation at the edge proxy.
	r.POST("/webhooks/payments", h.PaymentWebhook)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			aid, _ := auth.AccountID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "account_id": aid, "role": role})
		})

		// AGENT directory (read-only, any account member).
		agentsGroup := v1.Group("/agents")
		agentsGroup.Use(rbac.RequireAccount())
		{
			agentsGroup.GET("", h.ListAgents)
			agentsGroup.GET("/:agent_id", h.GetAgent)
		}

		// CALLS routes
		callsGroup := v1.Group("/calls")
		callsGroup.Use(rbac.RequireAccount())
		{
			// Starting a web call requires a non-depleted credit balance.
			callsGroup.POST("/web",
				rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleMember, rbac.RoleSuperAdmin),
				billing.RequireCredit(h.Billing, 0),
				h.CreateWebCall)
			callsGroup.POST("/:call_id/complete",
				rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleMember, rbac.RoleSuperAdmin),
				h.CompleteCall)
			callsGroup.GET("", h.ListCalls)
			callsGroup.POST("/batch",
				rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin),
				billing.RequireCredit(h.Billing, 0),
				h.CreateBatchCall)
		}

		// BILLING routes
		billingGroup := v1.Group("/billing")
		billingGroup.Use(rbac.RequireAccount())
		{
			billingGroup.POST("/customers",
				rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin),
				h.EnrollBilling)
			billingGroup.POST("/subscriptions",
				rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin),
				h.Subscribe)
			billingGroup.GET("/profile", h.GetBalance)
			billingGroup.GET("/ledger",
				rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleFinance, rbac.RoleSuperAdmin),
				h.GetLedger)
			billingGroup.POST("/usage",
				rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleFinance, rbac.RoleSuperAdmin),
				h.ReportUsage)
			billingGroup.POST("/checkout-sessions",
				rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleFinance, rbac.RoleSuperAdmin),
				h.CreateCheckout)
			billingGroup.GET("/payment-success", h.PaymentSuccess)
		}

		// REPORTS routes
		reportsGroup := v1.Group("/reports")
		reportsGroup.Use(rbac.RequireAccount())
		reportsGroup.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleFinance, rbac.RoleSuperAdmin))
		{
			reportsGroup.GET("/calls", h.CallsReport)
			reportsGroup.GET("/spend", h.SpendReport)
			reportsGroup.GET("/agents/:agent_id", h.AgentReport)
		}

		// ADMIN routes
		// Only owner/super_admin can access admin endpoints by default.
		// Hidden support_operator is intentionally NOT included unless explicitly desired.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAccount())
		admin.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin))
		{
			admin.GET("/ping", func(c *gin.Context) {
				c.JSON(200, gin.H{"status": "ok"})
			})
			admin.GET("/accounts/:account_id/billing/settings", h.AdminGetSettings)
			admin.PUT("/accounts/:account_id/billing/settings", h.AdminUpdateSettings)
			admin.POST("/accounts/:account_id/billing/report-usage", h.AdminReportUsage)
		}
	}
}

// registerAuthRoutes wires token issuance separately: login must be reachable
// without an access token.
func registerAuthRoutes(r *gin.Engine, h httpapi.Handlers) {
	r.POST("/v1/auth/login", h.Login)
}
