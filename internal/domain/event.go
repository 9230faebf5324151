package domain

// EventTypeUserCreated is the only event type that provisions a database.
const EventTypeUserCreated = "user.created"

// InboundEvent is a single notification delivered by the webhook gateway.
// Data.ID is the identity key: opaque, and it names at most one database.
type InboundEvent struct {
	Type       string           `json:"type"`
	Data       EventData        `json:"data"`
	Attributes *EventAttributes `json:"attributes,omitempty"`
}

type EventData struct {
	ID string `json:"id"`
}

type EventAttributes struct {
	ClientIP string `json:"clientIp,omitempty"`
}

// IdentityKey returns the stable key the provisioned database is named after.
func (e InboundEvent) IdentityKey() string {
	return e.Data.ID
}

// ClientIP returns the geolocation hint, or "" when the event carries none.
func (e InboundEvent) ClientIP() string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes.ClientIP
}

// VerificationResult is produced per request by the signature verifier.
type VerificationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}
