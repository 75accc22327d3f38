package queue

import (
	"fmt"
	"strings"
)

// ProcessTrigger asks a worker to run one processing pass over the pending
// notifications. It carries no record ids; the worker fetches its own batch.
type ProcessTrigger struct {
	CorrelationID string `json:"correlationId"`
	Source        string `json:"source"`
}

func (m ProcessTrigger) Validate() error {
	if strings.TrimSpace(m.CorrelationID) == "" {
		return fmt.Errorf("correlationId is required")
	}
	if strings.TrimSpace(m.Source) == "" {
		return fmt.Errorf("source is required")
	}
	return nil
}
