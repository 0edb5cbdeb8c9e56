package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// OperatorAudit records every successful write an operator triggers, such as
// a manual schedule or delivery batch.
func OperatorAudit(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		action := auditAction(c.FullPath())
		if action == "" {
			return
		}

		event := log.Info().
			Str("audit_action", action).
			Str("operator", c.GetString(CtxSubject)).
			Str("client_ip", c.ClientIP()).
			Int("status", status)
		if tenant := PinnedTenant(c); tenant != nil {
			event = event.Str("tenant_id", tenant.String())
		}
		event.Msg("operator action")
	}
}

func auditAction(route string) string {
	switch route {
	case "/api/v1/batches/schedule":
		return "schedule_batch"
	case "/api/v1/batches/deliver":
		return "deliver_batch"
	}
	return ""
}
