package billing

import (
	"context"
	"errors"
	"net/http"

	"voicedesk/internal/auth"
	"voicedesk/internal/rbac"

	"github.com/gin-gonic/gin"
)

// BalanceReader is the minimal billing surface needed by middleware.
type BalanceReader interface {
	Balance(ctx context.Context, accountID string) (Profile, error)
}

// RequireCredit blocks call-creating requests once the account's credit
// deficit exceeds the configured floor. The floor is expressed in minor
// units as a non-negative number: floor 5000 means calls stop once the
// balance drops below -5000.
//
// Admin override:
// - super_admin bypasses
// - hidden support_operator bypasses
func RequireCredit(svc BalanceReader, floorMinor int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := auth.Role(c.Request.Context())
		if rbac.IsSuperAdmin(role) || rbac.IsHiddenRole(role) {
			c.Next()
			return
		}

		accountID, err := auth.AccountID(c.Request.Context())
		if err != nil || accountID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
			return
		}

		prof, err := svc.Balance(c.Request.Context(), accountID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// No profile yet means no accrued usage; let the call through.
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
			return
		}
		if prof.CreditBalanceMinor < -floorMinor {
			// 402 Payment Required is semantically appropriate.
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "credit exhausted"})
			return
		}

		c.Next()
	}
}
