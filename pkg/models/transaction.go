package models

import "time"

// Transaction is the execution state of one integration instance. It is owned by exactly one
// goroutine at a time and never reused once Finished.
type Transaction struct {
	ID                uint64         `json:"id,string"`
	IntegrationID     string         `json:"integration_id"`
	ClientID          string         `json:"client_id,omitempty"`
	CurrentStep       string         `json:"current_step"`
	PreviousStep      string         `json:"previous_step,omitempty"`
	Message           any            `json:"message,omitempty"`
	IntegrationConfig any            `json:"integration_config,omitempty"`
	Properties        map[string]any `json:"properties,omitempty"`
	Failed            bool           `json:"failed"`
	Finished          bool           `json:"finished"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// SetProperty stores a value in the auxiliary property bag.
func (t *Transaction) SetProperty(key string, value any) {
	if t.Properties == nil {
		t.Properties = make(map[string]any)
	}

	t.Properties[key] = value
}

// Property reads a value from the auxiliary property bag.
func (t *Transaction) Property(key string) (any, bool) {
	v, ok := t.Properties[key]

	return v, ok
}

// MoveTo records the step just executed and makes next the current step.
func (t *Transaction) MoveTo(next string) {
	t.PreviousStep = t.CurrentStep
	t.CurrentStep = next
}
