package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the processing lifecycle state of a notification.
type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusRetrying   Status = "retrying"
	StatusDLQ        Status = "dlq"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusProcessing, StatusProcessed, StatusRetrying, StatusDLQ:
		return true
	}
	return false
}

// IsTerminal reports whether a status can never transition again.
func (s Status) IsTerminal() bool {
	return s == StatusProcessed || s == StatusDLQ
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Type represents the kind of downstream work a notification carries.
type Type string

const (
	TypeUserRegistration   Type = "user-registration"
	TypeTaskSignup         Type = "task-signup"
	TypeUserLogin          Type = "user-login"
	TypeTransactionalEmail Type = "transactional-email"
	TypeProcessingTest     Type = "processing-test"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case TypeUserRegistration, TypeTaskSignup, TypeUserLogin, TypeTransactionalEmail, TypeProcessingTest:
		return true
	}
	return false
}

func ParseTypeFromString(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return t, nil
}

// DispatchOrder lists the type buckets in the order a processing run drains
// them. Registrations go first: a signup or login handler may need a CRM id
// that only a completed registration provides.
var DispatchOrder = []Type{
	TypeUserRegistration,
	TypeTaskSignup,
	TypeUserLogin,
	TypeTransactionalEmail,
	TypeProcessingTest,
}

// Notification is one durable unit of downstream work.
//
// Details is set at creation and never mutated by processing; every change to
// processing state goes through ProcessingStatus, ProcessingFailCount and
// ProcessingErrorMessage.
type Notification struct {
	ID                     string
	Type                   Type
	Label                  string
	Details                json.RawMessage
	ProcessingStatus       Status
	ProcessingFailCount    int
	ProcessingErrorMessage *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, n.Type)
	}
	if strings.TrimSpace(n.Label) == "" {
		return fmt.Errorf("%w: label is required", ErrValidation)
	}
	if len(n.Details) == 0 || !json.Valid(n.Details) {
		return fmt.Errorf("%w: details must be a valid JSON document", ErrValidation)
	}
	if !n.ProcessingStatus.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, n.ProcessingStatus)
	}
	if n.ProcessingFailCount < 0 {
		return fmt.Errorf("%w: fail count must not be negative", ErrValidation)
	}
	return nil
}
