package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// CircuitBreaker stops calling the provisioning backend after repeated
// transient failures. There is one circuit per backend scope, stored as a
// Redis hash so all replicas agree on it.
//
// An open circuit turns deliveries into transient failures without a
// backend call. Once the cooldown has passed the next delivery is let
// through as a trial: success closes the circuit, failure reopens it.
type CircuitBreaker struct {
	redisClient *redis.Client
	logger      *slog.Logger
	threshold   int64
	cooldown    time.Duration
	now         func() time.Time
}

// CircuitBreakerState is the breaker as reported on the backend-health route.
type CircuitBreakerState struct {
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

type circuit struct {
	state      string
	failures   int64
	lastFailed time.Time
}

func NewCircuitBreaker(redisClient *redis.Client, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		redisClient: redisClient,
		logger:      logger,
		threshold:   5,
		cooldown:    30 * time.Second,
		now:         time.Now,
	}
}

func cbKey(scope string) string {
	return fmt.Sprintf("cb:%s", scope)
}

func (cb *CircuitBreaker) load(ctx context.Context, scope string) (circuit, error) {
	fields, err := cb.redisClient.HGetAll(ctx, cbKey(scope)).Result()
	if err != nil {
		return circuit{state: StateClosed}, err
	}

	c := circuit{state: fields["state"]}
	if c.state == "" {
		c.state = StateClosed
	}
	c.failures, _ = strconv.ParseInt(fields["failures"], 10, 64)
	if unix, _ := strconv.ParseInt(fields["last_failed_at"], 10, 64); unix > 0 {
		c.lastFailed = time.Unix(unix, 0)
	}
	return c, nil
}

func (cb *CircuitBreaker) cooledDown(c circuit) bool {
	return cb.now().Sub(c.lastFailed) >= cb.cooldown
}

// Allow reports whether a backend call for scope may go ahead, along with
// the circuit state it saw. Redis errors fail open.
func (cb *CircuitBreaker) Allow(ctx context.Context, scope string) (string, bool) {
	c, err := cb.load(ctx, scope)
	if err != nil {
		cb.logger.Warn("circuit breaker unavailable, allowing call", "error", err, "scope", scope)
		return StateClosed, true
	}

	if c.state != StateOpen {
		return c.state, true
	}
	if !cb.cooledDown(c) {
		return StateOpen, false
	}

	cb.redisClient.HSet(ctx, cbKey(scope), "state", StateHalfOpen)
	cb.logger.Info("provisioning backend on trial", "scope", scope)
	return StateHalfOpen, true
}

// RecordSuccess closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, scope string) {
	key := cbKey(scope)

	prev, _ := cb.redisClient.HGet(ctx, key, "state").Result()
	if err := cb.redisClient.HSet(ctx, key, "state", StateClosed, "failures", 0).Err(); err != nil {
		cb.logger.Warn("failed to reset circuit breaker", "error", err, "scope", scope)
		return
	}

	if prev == StateOpen || prev == StateHalfOpen {
		cb.logger.Info("provisioning backend recovered", "scope", scope)
	}
}

// RecordFailure counts one transient backend failure. A failed trial call,
// or reaching the threshold, opens the circuit.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, scope string) {
	key := cbKey(scope)

	failures, err := cb.redisClient.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		cb.logger.Error("failed to count backend failure", "error", err, "scope", scope)
		return
	}
	prev, _ := cb.redisClient.HGet(ctx, key, "state").Result()

	next := prev
	switch {
	case prev == StateHalfOpen, failures >= cb.threshold:
		next = StateOpen
	case prev == "":
		next = StateClosed
	}
	cb.redisClient.HSet(ctx, key, "state", next, "last_failed_at", cb.now().Unix())

	if next == StateOpen && prev != StateOpen {
		cb.logger.Warn("provisioning backend circuit opened",
			"scope", scope,
			"failures", failures,
			"after_trial", prev == StateHalfOpen,
		)
	}
}

// GetState reports the circuit for scope. An open circuit past its cooldown
// is reported as half-open, which is what the next Allow will do.
func (cb *CircuitBreaker) GetState(ctx context.Context, scope string) CircuitBreakerState {
	c, err := cb.load(ctx, scope)
	if err != nil {
		return CircuitBreakerState{State: StateClosed}
	}

	if c.state == StateOpen && cb.cooledDown(c) {
		c.state = StateHalfOpen
	}

	out := CircuitBreakerState{State: c.state, Failures: int(c.failures)}
	if !c.lastFailed.IsZero() {
		out.LastFailedAt = c.lastFailed.UTC().Format(time.RFC3339)
	}
	return out
}
