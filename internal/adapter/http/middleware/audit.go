package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware for successful write operations that
// the services do not audit themselves. Registration is unauthenticated, so
// its handler sets CtxAccountID to the new account.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		action, resourceType := mapPathToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var accountID *uuid.UUID
		if id, ok := AccountID(c); ok {
			accountID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			AccountID:    accountID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID(c, resourceType, accountID),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

// mapPathToAction matches on the route template, so path parameters do not
// need parsing.
func mapPathToAction(route, method string) (domain.AuditAction, string) {
	switch {
	case route == "/api/v1/accounts" && method == http.MethodPost:
		return domain.AuditActionAccountRegistered, "account"
	case route == "/api/v1/withdrawals/sessions/:id" && method == http.MethodDelete:
		return domain.AuditActionSessionClosed, "session"
	}
	return "", ""
}

func resourceID(c *gin.Context, resourceType string, accountID *uuid.UUID) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	if resourceType == "account" && accountID != nil {
		return accountID.String()
	}
	return ""
}
