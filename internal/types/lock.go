package types

import (
	"fmt"
	"sort"
	"strings"
)

// LockScope names the entity class a serialization lock protects.
type LockScope string

const (
	// LockScopeTenant serializes the one-in-flight request check-then-create
	// and entitlement mutations for a single tenant.
	LockScopeTenant LockScope = "tenant"

	// LockScopeCoupon serializes redemption-cap enforcement for a single coupon.
	LockScopeCoupon LockScope = "coupon"
)

// GenerateLockKey builds a deterministic lock key from a scope and parameters.
// The store hashes the key internally, so the format only needs to be stable:
// scope:key1=value1:key2=value2 with keys sorted.
func GenerateLockKey(scope LockScope, params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(scope))
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(":%s=%v", k, params[k]))
	}
	return b.String()
}
