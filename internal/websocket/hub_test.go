package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type feed struct {
	hub    *Hub
	server *httptest.Server
	stop   context.CancelFunc
}

func startFeed(t *testing.T) *feed {
	t.Helper()
	hub := NewHub(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return &feed{hub: hub, server: server, stop: cancel}
}

func (f *feed) subscribe(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) ProvisionEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read feed: %v", err)
	}
	var ev ProvisionEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode feed event %q: %v", msg, err)
	}
	return ev
}

func TestHub_SubscriberCount(t *testing.T) {
	f := startFeed(t)
	if got := f.hub.ClientCount(); got != 0 {
		t.Fatalf("new hub has %d subscribers", got)
	}

	conn := f.subscribe(t)
	waitForSubscribers(t, f.hub, 1)

	conn.Close()
	waitForSubscribers(t, f.hub, 0)
}

func TestHub_BroadcastFansOut(t *testing.T) {
	tests := []struct {
		name        string
		subscribers int
		event       ProvisionEvent
	}{
		{
			name:        "created with region",
			subscribers: 1,
			event: ProvisionEvent{
				Type: "provision_created", ID: "rec-123", Identity: "user_abc",
				Outcome: "created", Region: "eu-west-1", DurationMs: 42,
			},
		},
		{
			name:        "already exists to every subscriber",
			subscribers: 3,
			event: ProvisionEvent{
				Type: "provision_already_exists", ID: "rec-multi", Identity: "user_xyz",
				Outcome: "already_exists",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := startFeed(t)
			conns := make([]*websocket.Conn, tt.subscribers)
			for i := range conns {
				conns[i] = f.subscribe(t)
			}
			waitForSubscribers(t, f.hub, tt.subscribers)

			tt.event.Timestamp = time.Now().UTC()
			f.hub.Broadcast(tt.event)

			for i, conn := range conns {
				got := readEvent(t, conn)
				if got.ID != tt.event.ID || got.Outcome != tt.event.Outcome || got.Identity != tt.event.Identity {
					t.Errorf("subscriber %d got %+v, want %+v", i, got, tt.event)
				}
				if got.Region != tt.event.Region || got.DurationMs != tt.event.DurationMs {
					t.Errorf("subscriber %d region/duration = %q/%d", i, got.Region, got.DurationMs)
				}
			}
		})
	}
}

func TestHub_BroadcastWithoutSubscribers(t *testing.T) {
	f := startFeed(t)
	for i := 0; i < sendBuffer*2; i++ {
		f.hub.Broadcast(ProvisionEvent{ID: "rec", Outcome: "ignored"})
	}
}

func TestHub_StopClosesSubscribers(t *testing.T) {
	f := startFeed(t)
	conn := f.subscribe(t)
	waitForSubscribers(t, f.hub, 1)

	f.stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close after hub stops")
	}

	// Subscribing after stop must not hang the handler.
	late := f.subscribe(t)
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Fatal("expected late subscriber to be closed")
	}
}
