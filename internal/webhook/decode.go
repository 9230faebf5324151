package webhook

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
)

// ErrMalformedPayload is returned when a verified body cannot be used.
var ErrMalformedPayload = errors.New("malformed payload")

// Decode parses a verified raw body into an InboundEvent.
func Decode(raw []byte) (domain.InboundEvent, error) {
	var event domain.InboundEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return domain.InboundEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if event.Type == "" {
		return domain.InboundEvent{}, fmt.Errorf("%w: type is required", ErrMalformedPayload)
	}
	if event.Data.ID == "" {
		return domain.InboundEvent{}, fmt.Errorf("%w: data.id is required", ErrMalformedPayload)
	}

	return event, nil
}
