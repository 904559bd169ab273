package types

const (
	HeaderRequestID     = "X-Request-ID"
	HeaderTenantID      = "X-Tenant-ID"
	HeaderActorID       = "X-Actor-ID"
	HeaderAuthorization = "Authorization"
)
