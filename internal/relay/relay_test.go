package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/services"
)

func TestWebhookRelayPostsPayloads(t *testing.T) {
	var mu sync.Mutex
	var got []payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := NewWebhookRelay(srv.URL, time.Second)
	ctx := context.Background()
	if err := r.Deliver(ctx, services.Event{Type: services.EventMatchFound, UserID: "a", PartnerID: "b"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := r.Forward(ctx, services.Message{To: "b", Text: "hi"}); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	want := []payload{
		{Kind: "event", Type: "match_found", UserID: "a", PartnerID: "b"},
		{Kind: "message", UserID: "b", Text: "hi"},
	}
	if len(got) != len(want) {
		t.Fatalf("payloads = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("payload %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWebhookRelayFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chat not found", http.StatusForbidden)
	}))
	defer srv.Close()

	ctx := context.Background()
	ev := services.Event{Type: services.EventPartnerDisconnected, UserID: "a"}

	if err := NewWebhookRelay(srv.URL, time.Second).Deliver(ctx, ev); err == nil {
		t.Fatal("expected error for 403 response")
	}

	unreachable := httptest.NewServer(http.NotFoundHandler())
	url := unreachable.URL
	unreachable.Close()
	if err := NewWebhookRelay(url, time.Second).Deliver(ctx, ev); err == nil {
		t.Fatal("expected error for closed server")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := NewWebhookRelay(srv.URL, time.Second).Deliver(cancelled, ev); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestLogRelayNeverFails(t *testing.T) {
	var r services.Relay = LogRelay{}
	if err := r.Deliver(context.Background(), services.Event{Type: services.EventAccountBanned, UserID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Forward(context.Background(), services.Message{To: "a", Text: "x"}); err != nil {
		t.Fatal(err)
	}
}
