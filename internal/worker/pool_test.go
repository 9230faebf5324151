package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
	"github.com/Priya8975/userdb-provisioner/internal/websocket"
)

type memStore struct {
	mu      sync.Mutex
	records []domain.ProvisionRecord
	err     error
	block   chan struct{}
}

func (m *memStore) RecordProvision(ctx context.Context, rec domain.ProvisionRecord) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type memHub struct {
	mu     sync.Mutex
	events []websocket.ProvisionEvent
}

func (h *memHub) Broadcast(event websocket.ProvisionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func record(id string, outcome domain.Outcome) domain.ProvisionRecord {
	return domain.ProvisionRecord{
		ID:        id,
		Identity:  "user_" + id,
		Outcome:   outcome,
		CreatedAt: time.Now(),
	}
}

func TestRecorder_WritesStoreAndHub(t *testing.T) {
	st := &memStore{}
	hub := &memHub{}
	r := NewRecorder(st, hub, testLogger())

	r.Record(context.Background(), record("1", domain.OutcomeCreated))

	if st.count() != 1 {
		t.Errorf("expected 1 stored record, got %d", st.count())
	}
	if len(hub.events) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(hub.events))
	}
	if hub.events[0].Type != "provision_created" {
		t.Errorf("event type = %q, want provision_created", hub.events[0].Type)
	}
	if hub.events[0].Identity != "user_1" {
		t.Errorf("event identity = %q", hub.events[0].Identity)
	}
}

func TestRecorder_StoreErrorStillBroadcasts(t *testing.T) {
	st := &memStore{err: errors.New("db down")}
	hub := &memHub{}
	r := NewRecorder(st, hub, testLogger())

	r.Record(context.Background(), record("1", domain.OutcomeTransientFailure))

	if len(hub.events) != 1 {
		t.Errorf("expected broadcast despite store error, got %d", len(hub.events))
	}
}

func TestRecorder_NilSinks(t *testing.T) {
	r := NewRecorder(nil, nil, testLogger())
	// Must not panic.
	r.Record(context.Background(), record("1", domain.OutcomeIgnored))
}

func TestPool_DrainsOnStop(t *testing.T) {
	st := &memStore{}
	pool := NewPool(2, NewRecorder(st, nil, testLogger()), testLogger())
	pool.Start(context.Background())

	for i := 0; i < 20; i++ {
		if !pool.Submit(record(string(rune('a'+i)), domain.OutcomeCreated)) {
			t.Fatalf("submit %d dropped", i)
		}
	}
	pool.Stop()

	if st.count() != 20 {
		t.Errorf("expected 20 records after stop, got %d", st.count())
	}
}

func TestPool_SubmitNeverBlocks(t *testing.T) {
	st := &memStore{block: make(chan struct{})}
	pool := NewPool(1, NewRecorder(st, nil, testLogger()), testLogger())
	pool.Start(context.Background())

	capacity := cap(pool.jobs)
	dropped := 0
	done := make(chan struct{})
	go func() {
		// One record is held by the blocked worker, the rest fill the buffer.
		for i := 0; i < capacity+10; i++ {
			if !pool.Submit(record("r", domain.OutcomeCreated)) {
				dropped++
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a full queue")
	}
	if dropped == 0 {
		t.Error("expected some records to be dropped when the queue is full")
	}

	close(st.block)
	pool.Stop()
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool(1, NewRecorder(nil, nil, testLogger()), testLogger())
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()

	if pool.Submit(record("late", domain.OutcomeCreated)) {
		t.Error("Submit after Stop should report a drop")
	}
}
