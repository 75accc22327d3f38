package domain

// DefaultMaxRetries allows up to three attempts in total before a record is
// dead-lettered.
const DefaultMaxRetries = 2

// Outcome is the decided end state of one processing attempt.
type Outcome struct {
	Status       Status
	FailCount    int
	ErrorMessage *string
}

// Dead reports whether the record has exhausted its retry budget. The caller
// must surface the attempt error to the batch invoker after persisting the
// outcome.
func (o Outcome) Dead() bool {
	return o.Status == StatusDLQ
}

// DecideOutcome maps the result of a dispatch attempt onto the next status.
// Success finalizes to processed. Failure bumps the fail count, then
// dead-letters once the count exceeds maxRetries, otherwise schedules a retry.
// Pure: no I/O, fully determined by its inputs.
func DecideOutcome(failCount, maxRetries int, procErr error) Outcome {
	if procErr == nil {
		return Outcome{Status: StatusProcessed, FailCount: failCount}
	}

	msg := procErr.Error()
	newCount := failCount + 1
	status := StatusRetrying
	if newCount > maxRetries {
		status = StatusDLQ
	}
	return Outcome{Status: status, FailCount: newCount, ErrorMessage: &msg}
}
