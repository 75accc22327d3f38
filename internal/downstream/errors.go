package downstream

import (
	"fmt"
	"strings"
)

// CallError describes a failed call to an external collaborator (CRM,
// user directory, email provider). Any CallError during dispatch drives the
// retry/dead-letter decision of the notification state machine.
type CallError struct {
	Service    string
	StatusCode int
	Message    string
	Cause      error
}

func (e *CallError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	if e.Service != "" {
		parts = append(parts, e.Service+" error")
	} else {
		parts = append(parts, "downstream error")
	}

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *CallError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
