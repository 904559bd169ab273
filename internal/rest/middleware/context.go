package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/stackbill/stackbill/internal/types"
)

// ContextMiddleware seeds the request context with the request id and the
// acting identities. Authentication itself lives at the gateway; by the time
// a request reaches this service the headers are trusted.
func ContextMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	requestID := c.GetHeader(types.HeaderRequestID)
	if requestID == "" {
		requestID = types.GenerateUUID()
	}
	ctx = types.SetRequestID(ctx, requestID)
	c.Header(types.HeaderRequestID, requestID)

	if tenantID := c.GetHeader(types.HeaderTenantID); tenantID != "" {
		ctx = types.SetTenantID(ctx, tenantID)
		c.Set("tenant_id", tenantID)
	}
	if actorID := c.GetHeader(types.HeaderActorID); actorID != "" {
		ctx = types.SetActorID(ctx, actorID)
		c.Set("actor_id", actorID)
	}

	c.Request = c.Request.WithContext(ctx)
	c.Next()
}
