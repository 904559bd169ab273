package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/teris-io/shortid"
)

// Reference number prefixes. These appear on customer-facing documents and
// must remain stable once issued.
const (
	ReferencePrefixUpgrade     = "UPG"
	ReferencePrefixDowngrade   = "DWG"
	ReferencePrefixTransaction = "INV"
)

var refSID = shortid.MustNew(1, shortid.DefaultABC, 2342)

// GenerateReferenceNumber builds a human-readable, globally unique reference
// of the form PREFIX-YYYYMMDD-SUFFIX, e.g. "UPG-20260212-ABC123".
func GenerateReferenceNumber(prefix string, at time.Time) string {
	suffix, err := refSID.Generate()
	if err != nil {
		// shortid only fails on clock regression; fall back to a ulid slice
		// so number generation never blocks a billing operation.
		suffix = GenerateUUID()[:9]
	}
	suffix = sanitizeReferenceSuffix(suffix)
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102"), suffix)
}

// sanitizeReferenceSuffix keeps reference numbers safe to read aloud and to
// embed in URLs: uppercase alphanumerics only.
func sanitizeReferenceSuffix(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "000000"
	}
	return b.String()
}
