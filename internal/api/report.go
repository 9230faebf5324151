package api

import (
	"net/http"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
)

// outcomeStatus is the one place an outcome becomes an HTTP status. The
// gateway retries anything that is not 2xx.
var outcomeStatus = map[domain.Outcome]int{
	domain.OutcomeRejected:         http.StatusUnauthorized,
	domain.OutcomeMalformed:        http.StatusBadRequest,
	domain.OutcomeIgnored:          http.StatusOK,
	domain.OutcomeAlreadyExists:    http.StatusOK,
	domain.OutcomeCreated:          http.StatusCreated,
	domain.OutcomeThrottled:        http.StatusTooManyRequests,
	domain.OutcomeTransientFailure: http.StatusServiceUnavailable,
	domain.OutcomeFatalFailure:     http.StatusUnprocessableEntity,
}

// Seconds the gateway should wait before redelivering.
var retryAfter = map[domain.Outcome]string{
	domain.OutcomeThrottled: "1",
}

type provisionResponse struct {
	Status   domain.Outcome         `json:"status"`
	Message  string                 `json:"message"`
	Identity string                 `json:"identity,omitempty"`
	Resource *domain.ResourceRecord `json:"resource,omitempty"`
}

func statusFor(outcome domain.Outcome) int {
	if status, ok := outcomeStatus[outcome]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func validOutcome(outcome domain.Outcome) bool {
	_, ok := outcomeStatus[outcome]
	return ok
}

// reportResult writes the response for a finished delivery. Result.Err is
// never written to the client.
func reportResult(w http.ResponseWriter, res domain.Result) {
	if secs, ok := retryAfter[res.Outcome]; ok {
		w.Header().Set("Retry-After", secs)
	}
	respondJSON(w, statusFor(res.Outcome), provisionResponse{
		Status:   res.Outcome,
		Message:  res.Message,
		Identity: res.Identity,
		Resource: res.Resource,
	})
}
