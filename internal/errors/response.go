package errors

// ErrorResponse is the JSON shape every API error is rendered as.
type ErrorResponse struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewErrorResponse renders the caller-facing view of an error: the hint and
// the reportable details, never the internal chain.
func NewErrorResponse(err error) *ErrorResponse {
	return &ErrorResponse{
		Success: false,
		Error:   Hint(err),
		Details: ReportableDetails(err),
	}
}
