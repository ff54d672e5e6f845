package params

import (
	"strings"

	"go.trai.ch/zerr"
)

// ErrInvalidRequest is the sentinel matched by every validation failure
var ErrInvalidRequest = zerr.New("invalid generation request")

// ValidationError lists every constraint a request violates
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return ErrInvalidRequest.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// Add records a violation
func (e *ValidationError) Add(violation string) {
	e.Violations = append(e.Violations, violation)
}

// Err returns nil when no violations were recorded
func (e *ValidationError) Err() error {
	if len(e.Violations) == 0 {
		return nil
	}

	return e
}
