package domain

import "time"

// ProcessingAttempt records a single dispatch attempt for a notification.
type ProcessingAttempt struct {
	ID             string
	NotificationID string
	AttemptNumber  int
	Outcome        Status
	Error          *string
	CorrelationID  string
	CreatedAt      time.Time
}
