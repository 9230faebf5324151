package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// testClock lets tests move the breaker past its cooldown.
type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(t *testing.T) (*CircuitBreaker, *testClock) {
	t.Helper()
	client, _ := setupRedis(t)
	clock := &testClock{t: time.Now()}
	cb := NewCircuitBreaker(client, testLogger())
	cb.now = clock.now
	return cb, clock
}

func failTimes(cb *CircuitBreaker, scope string, n int) {
	for i := 0; i < n; i++ {
		cb.RecordFailure(context.Background(), scope)
	}
}

func TestCircuitBreaker_Allow(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wait      time.Duration
		wantState string
		wantAllow bool
	}{
		{"unknown scope", 0, 0, StateClosed, true},
		{"below threshold", 4, 0, StateClosed, true},
		{"at threshold", 5, 0, StateOpen, false},
		{"open within cooldown", 5, 29 * time.Second, StateOpen, false},
		{"open past cooldown", 5, 31 * time.Second, StateHalfOpen, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(t)
			failTimes(cb, "acme", tt.failures)
			clock.advance(tt.wait)

			state, allowed := cb.Allow(context.Background(), "acme")
			if state != tt.wantState || allowed != tt.wantAllow {
				t.Errorf("Allow = (%q, %v), want (%q, %v)", state, allowed, tt.wantState, tt.wantAllow)
			}
		})
	}
}

func TestCircuitBreaker_SuccessClearsFailures(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	failTimes(cb, "acme", 4)
	cb.RecordSuccess(ctx, "acme")
	failTimes(cb, "acme", 4)

	got := cb.GetState(ctx, "acme")
	if got.State != StateClosed || got.Failures != 4 {
		t.Errorf("state = %+v, want closed with 4 failures", got)
	}
}

func TestCircuitBreaker_TrialOutcome(t *testing.T) {
	tests := []struct {
		name      string
		succeed   bool
		wantState string
		wantAllow bool
	}{
		{"trial succeeds", true, StateClosed, true},
		{"trial fails", false, StateOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(t)
			ctx := context.Background()

			failTimes(cb, "acme", 5)
			clock.advance(31 * time.Second)
			if _, ok := cb.Allow(ctx, "acme"); !ok {
				t.Fatal("trial call should be let through after the cooldown")
			}

			if tt.succeed {
				cb.RecordSuccess(ctx, "acme")
			} else {
				cb.RecordFailure(ctx, "acme")
			}

			state, allowed := cb.Allow(ctx, "acme")
			if state != tt.wantState || allowed != tt.wantAllow {
				t.Errorf("after trial: Allow = (%q, %v), want (%q, %v)", state, allowed, tt.wantState, tt.wantAllow)
			}
		})
	}
}

func TestCircuitBreaker_ScopesAreIndependent(t *testing.T) {
	cb, _ := newTestBreaker(t)

	failTimes(cb, "acme", 5)

	if _, ok := cb.Allow(context.Background(), "acme"); ok {
		t.Error("acme circuit should be open")
	}
	if state, ok := cb.Allow(context.Background(), "globex"); !ok || state != StateClosed {
		t.Errorf("globex = (%q, %v), want closed and allowed", state, ok)
	}
}

func TestCircuitBreaker_GetState(t *testing.T) {
	cb, clock := newTestBreaker(t)
	ctx := context.Background()

	if got := cb.GetState(ctx, "acme"); got.State != StateClosed || got.Failures != 0 || got.LastFailedAt != "" {
		t.Errorf("fresh scope = %+v", got)
	}

	failTimes(cb, "acme", 5)
	got := cb.GetState(ctx, "acme")
	if got.State != StateOpen || got.Failures != 5 {
		t.Errorf("after 5 failures = %+v", got)
	}
	if _, err := time.Parse(time.RFC3339, got.LastFailedAt); err != nil {
		t.Errorf("LastFailedAt %q is not RFC3339: %v", got.LastFailedAt, err)
	}

	clock.advance(31 * time.Second)
	if got := cb.GetState(ctx, "acme"); got.State != StateHalfOpen {
		t.Errorf("past cooldown state = %q, want half-open", got.State)
	}
}

func TestCircuitBreaker_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cb := NewCircuitBreaker(client, testLogger())
	mr.Close()

	if _, ok := cb.Allow(context.Background(), "acme"); !ok {
		t.Error("breaker should allow calls when Redis is unreachable")
	}
}
