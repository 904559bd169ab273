package types

import (
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	UUID_PREFIX_TIER              = "tier"
	UUID_PREFIX_TENANT            = "tnnt"
	UUID_PREFIX_UPGRADE_REQUEST   = "ugreq"
	UUID_PREFIX_TRANSACTION       = "btxn"
	UUID_PREFIX_COUPON            = "coup"
	UUID_PREFIX_COUPON_REDEMPTION = "credm"
	UUID_PREFIX_PAYMENT_METHOD    = "paym"
	UUID_PREFIX_EVENT             = "evnt"
)

// GenerateUUID returns a lowercase k-sortable unique identifier.
func GenerateUUID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// GenerateUUIDWithPrefix returns a unique identifier prefixed with the entity
// short code, e.g. "ugreq_01h9...".
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return prefix + "_" + GenerateUUID()
}
