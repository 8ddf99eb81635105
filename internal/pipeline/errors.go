package pipeline

import "fmt"

// Request rejection kinds.
const (
	RejectEmpty    = "empty"
	RejectTooLarge = "too_large"
	RejectNotPDF   = "not_pdf"
	RejectLanguage = "unsupported_language"
)

// InvalidRequestError indicates the request failed validation before any
// pipeline work was performed.
type InvalidRequestError struct {
	Kind   string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request (%s): %s", e.Kind, e.Reason)
}
