// Package events carries the audit and notification events emitted by every
// state transition and administrator adjustment. Services collect events
// during a unit of work and publish them only after the primary transaction
// commits, so sink availability never blocks or rolls back billing logic.
package events

import (
	"context"
	"time"

	"github.com/stackbill/stackbill/internal/types"
)

// Topic is the single bus topic billing events are published on.
const Topic = "billing.events"

// Kind separates audit records from tenant-facing notifications.
type Kind string

const (
	KindAudit        Kind = "audit"
	KindNotification Kind = "notification"
)

// Event is one audit or notification record.
type Event struct {
	ID         string                 `json:"id"`
	Kind       Kind                   `json:"kind"`
	Name       string                 `json:"name"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	ActorID    string                 `json:"actor_id"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Event names. Audit events record what happened; notification events tell
// the tenant about it.
const (
	EventRequestCreated      = "upgrade_request.created"
	EventRequestProofUpload  = "upgrade_request.payment_proof_uploaded"
	EventRequestApproved     = "upgrade_request.approved"
	EventRequestRejected     = "upgrade_request.rejected"
	EventRequestCancelled    = "upgrade_request.cancelled"
	EventRequestExpired      = "upgrade_request.expired"
	EventDowngradeScheduled  = "downgrade.scheduled"
	EventDowngradeApplied    = "downgrade.applied"
	EventTransactionCreated  = "billing_transaction.created"
	EventTransactionAdjusted = "billing_transaction.adjusted"
	EventTransactionApproved = "billing_transaction.approved"
	EventTransactionRejected = "billing_transaction.rejected"
	EventCouponApplied       = "coupon.applied"
	EventBonusDaysAdded      = "bonus_days.added"
	EventEntitlementsChanged = "entitlements.changed"
)

// NewAuditEvent builds an audit record attributed to the context's actor.
func NewAuditEvent(ctx context.Context, name, entityType, entityID, tenantID string, details map[string]interface{}) *Event {
	return newEvent(ctx, KindAudit, name, entityType, entityID, tenantID, details)
}

// NewNotificationEvent builds a best-effort tenant notification.
func NewNotificationEvent(ctx context.Context, name, entityType, entityID, tenantID string, details map[string]interface{}) *Event {
	return newEvent(ctx, KindNotification, name, entityType, entityID, tenantID, details)
}

func newEvent(ctx context.Context, kind Kind, name, entityType, entityID, tenantID string, details map[string]interface{}) *Event {
	return &Event{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT),
		Kind:       kind,
		Name:       name,
		TenantID:   tenantID,
		ActorID:    types.GetActorID(ctx),
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		OccurredAt: time.Now().UTC(),
	}
}
