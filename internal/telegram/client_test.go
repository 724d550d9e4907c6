package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medconn/medconnect/internal/backoff"
)

func newTestClient(t *testing.T, baseURL string, sleep func(time.Duration)) *Client {
	t.Helper()
	if sleep == nil {
		sleep = func(time.Duration) {}
	}
	client, err := NewClient(ClientOptions{
		BaseURL: baseURL,
		Token:   "test-token",
		Retry: backoff.Policy{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			Sleep:        sleep,
		},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestSendMessageRetriesRateLimitThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	var waits []time.Duration
	client := newTestClient(t, srv.URL, func(d time.Duration) { waits = append(waits, d) })

	if err := client.SendMessage(context.Background(), 42, "hola"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("server calls = %d, want 3", got)
	}
	if len(waits) != 2 {
		t.Fatalf("waits = %d, want 2", len(waits))
	}
	// Retry-After of zero falls back to the policy delays, which must grow.
	if waits[1] <= waits[0] {
		t.Fatalf("waits not strictly increasing: %v", waits)
	}
}

func TestSendMessagePermanentHTTPErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)
	err := client.SendMessage(context.Background(), 42, "hola")
	if err == nil {
		t.Fatal("SendMessage() error = nil, want http 400")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("server calls = %d, want 1", got)
	}
}

func TestSendMessageRequiresChatAndText(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, "http://127.0.0.1:1", nil)
	if err := client.SendMessage(context.Background(), 0, "hola"); err == nil {
		t.Fatal("SendMessage() with zero chat_id should fail")
	}
	if err := client.SendMessage(context.Background(), 42, "   "); err == nil {
		t.Fatal("SendMessage() with blank text should fail")
	}
}

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": []map[string]any{
				{"update_id": 7, "message": map[string]any{"message_id": 1, "text": "hola", "chat": map[string]any{"id": 42, "type": "private"}}},
				{"update_id": 9, "message": map[string]any{"message_id": 2, "text": "menu", "chat": map[string]any{"id": 42, "type": "private"}}},
			},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)
	updates, next, err := client.GetUpdates(context.Background(), 0, time.Second)
	if err != nil {
		t.Fatalf("GetUpdates() error = %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("GetUpdates() len = %d, want 2", len(updates))
	}
	if next != 10 {
		t.Fatalf("GetUpdates() next = %d, want 10", next)
	}
	if updates[0].Msg() == nil || updates[0].Msg().TextOrCaption() != "hola" {
		t.Fatalf("GetUpdates() first message = %+v", updates[0])
	}
}

func TestGetUpdatesConnectivityErrorIsClassified(t *testing.T) {
	t.Parallel()

	// Nothing listens here; the dial fails.
	client := newTestClient(t, "http://127.0.0.1:1", nil)
	_, _, err := client.GetUpdates(context.Background(), 0, time.Second)
	var classified *backoff.Error
	if !errors.As(err, &classified) {
		t.Fatalf("GetUpdates() error = %v, want classified", err)
	}
	if classified.Kind != backoff.KindConnectivity && classified.Kind != backoff.KindTimeout {
		t.Fatalf("GetUpdates() kind = %v, want connectivity or timeout", classified.Kind)
	}
}

func TestProberReachable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	up := Prober{Target: ln.Addr().String()}
	if !up.Reachable(context.Background()) {
		t.Fatal("Reachable() = false, want true")
	}

	down := Prober{Target: "127.0.0.1:1"}
	if down.Reachable(context.Background()) {
		t.Fatal("Reachable() = true for closed port, want false")
	}
}

func TestWaitForConnectionGrowsWaits(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	p := Prober{
		Target: "127.0.0.1:1",
		Sleep:  func(d time.Duration) { waits = append(waits, d) },
	}
	ok := p.WaitForConnection(context.Background(), 12*time.Second)
	if ok {
		t.Fatal("WaitForConnection() = true for closed port")
	}
	if len(waits) < 2 {
		t.Fatalf("waits = %v, want at least 2 probes", waits)
	}
	if waits[1] <= waits[0] {
		t.Fatalf("waits not growing: %v", waits)
	}
}
