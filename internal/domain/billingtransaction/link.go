package billingtransaction

// RequestLink says whether a ledger row belongs to an upgrade request or
// stands alone (manual transactions). It replaces a nullable foreign key so
// every branch on "is this linked" is explicit.
type RequestLink struct {
	requestID string
}

// Standalone returns the link of a manual transaction.
func Standalone() RequestLink {
	return RequestLink{}
}

// LinkedToRequest returns the link to an upgrade request.
func LinkedToRequest(requestID string) RequestLink {
	return RequestLink{requestID: requestID}
}

// IsLinked reports whether the row belongs to an upgrade request.
func (l RequestLink) IsLinked() bool {
	return l.requestID != ""
}

// RequestID returns the linked request id, if any.
func (l RequestLink) RequestID() (string, bool) {
	return l.requestID, l.requestID != ""
}
