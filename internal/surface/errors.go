package surface

import "fmt"

// MalformedRiskDataError reports a risk surface that cannot be loaded.
// Loading aborts on the first one found.
type MalformedRiskDataError struct {
	Cell   string // empty for document-level problems
	Field  string
	Reason string
	Err    error
}

func (e *MalformedRiskDataError) Error() string {
	msg := "malformed risk data"
	if e.Cell != "" {
		msg += fmt.Sprintf(": cell %s", e.Cell)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(": field %s", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRiskDataError) Unwrap() error {
	return e.Err
}
