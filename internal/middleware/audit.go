package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thirtyx30/thirtyx30/internal/audit"
)

// auditedRoutes maps "METHOD route-pattern" to the audit action it records.
// Routes not listed here are never audited.
var auditedRoutes = map[string]string{
	"GET /api/v1/auth/callback":     audit.ActionLogin,
	"POST /api/v1/auth/logout":      audit.ActionLogout,
	"DELETE /api/v1/me":             audit.ActionAccountDeleted,
	"POST /api/v1/activities":       audit.ActionActivityCreated,
	"DELETE /api/v1/activities/:id": audit.ActionActivityDeleted,

	"POST /api/v1/orgs":                                      audit.ActionOrgCreated,
	"PUT /api/v1/orgs/:org_id":                               audit.ActionOrgUpdated,
	"PUT /api/v1/orgs/:org_id/members/:user_id":              audit.ActionMemberRoleChanged,
	"DELETE /api/v1/orgs/:org_id/members/:user_id":           audit.ActionMemberRemoved,
	"POST /api/v1/orgs/:org_id/invitations":                  audit.ActionInvitationCreated,
	"DELETE /api/v1/orgs/:org_id/invitations/:invitation_id": audit.ActionInvitationRevoked,
	"POST /api/v1/invitations/accept":                        audit.ActionInvitationAccepted,

	"GET /api/v1/providers/:provider/callback": audit.ActionProviderConnected,
	"DELETE /api/v1/providers/:provider":       audit.ActionProviderRemoved,
}

// AuditMiddleware records security-relevant requests to the audit trail. It
// runs after the handler so the recorded status code reflects the outcome;
// denied attempts are audited too.
func AuditMiddleware(shipper audit.Shipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		action, ok := auditedRoutes[c.Request.Method+" "+c.FullPath()]
		if !ok {
			return
		}

		event := &audit.Event{
			Timestamp:      time.Now().UTC(),
			Action:         action,
			UserID:         UserID(c),
			OrganizationID: OrgID(c),
			IPAddress:      c.ClientIP(),
			StatusCode:     c.Writer.Status(),
		}
		if target, targetType := auditTarget(c); target != "" {
			event.TargetID = target
			event.TargetType = targetType
		}

		// Shipping failures are logged inside the shipper; a broken audit
		// destination must not fail the request.
		_ = shipper.Ship(c.Request.Context(), event)
	}
}

// auditTarget pulls the acted-on resource out of the route parameters
func auditTarget(c *gin.Context) (id, kind string) {
	for _, p := range []struct{ param, kind string }{
		{"invitation_id", "invitation"},
		{"user_id", "member"},
		{"provider", "provider"},
		{"id", "activity"},
		{"org_id", "organization"},
	} {
		if v := c.Param(p.param); v != "" {
			return v, p.kind
		}
	}
	// Creates have no path parameter; the new resource id only exists in the
	// response body.
	return "", ""
}
