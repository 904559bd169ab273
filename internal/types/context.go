package types

import "context"

type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
	CtxTenantID  ContextKey = "ctx_tenant_id"
	CtxActorID   ContextKey = "ctx_actor_id"

	// DefaultActorID attributes mutations made outside an authenticated
	// request, e.g. the scheduled sweeps.
	DefaultActorID = "system"
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}

func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, CtxTenantID, tenantID)
}

func SetActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, CtxActorID, actorID)
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxRequestID).(string); ok {
		return id
	}
	return ""
}

func GetTenantID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxTenantID).(string); ok {
		return id
	}
	return ""
}

// GetActorID returns the acting user id from the context, falling back to
// the system actor for unattended paths.
func GetActorID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxActorID).(string); ok && id != "" {
		return id
	}
	return DefaultActorID
}
