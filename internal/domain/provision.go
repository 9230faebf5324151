package domain

import (
	"time"
)

// ResourceRecord is the backend's view of a provisioned database. It is read
// fresh on every delivery and never cached.
type ResourceRecord struct {
	Name   string `json:"name"`
	Region string `json:"region"`
}

// Outcome is the terminal state of a single delivery.
type Outcome string

const (
	OutcomeRejected         Outcome = "rejected"
	OutcomeMalformed        Outcome = "malformed"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeAlreadyExists    Outcome = "already_exists"
	OutcomeCreated          Outcome = "created"
	OutcomeThrottled        Outcome = "throttled"
	OutcomeTransientFailure Outcome = "transient_failure"
	OutcomeFatalFailure     Outcome = "fatal_failure"
)

// Processed reports whether the gateway should stop redelivering.
func (o Outcome) Processed() bool {
	switch o {
	case OutcomeIgnored, OutcomeAlreadyExists, OutcomeCreated:
		return true
	}
	return false
}

// Result is what the provisioning workflow hands to the response reporter.
type Result struct {
	Outcome  Outcome         `json:"outcome"`
	Identity string          `json:"identity,omitempty"`
	Region   string          `json:"region,omitempty"`
	Resource *ResourceRecord `json:"resource,omitempty"`
	Message  string          `json:"message"`
	Err      error           `json:"-"`
}

// ProvisionRecord is one audited delivery outcome.
type ProvisionRecord struct {
	ID           string    `json:"id"`
	WebhookID    string    `json:"webhook_id,omitempty"`
	Identity     string    `json:"identity,omitempty"`
	EventType    string    `json:"event_type,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	Region       string    `json:"region,omitempty"`
	ResourceName string    `json:"resource_name,omitempty"`
	Message      string    `json:"message,omitempty"`
	DurationMs   int       `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
