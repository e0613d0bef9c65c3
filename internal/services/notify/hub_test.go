package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/xelth-com/eckbackoffice/internal/websocket"
)

func TestHubSinkPushesToRecipient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(hub, 7, w, r)
	}))
	defer srv.Close()

	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	recipient := uint(7)
	sink := NewHubSink(hub)
	err = sink.Publish(ctx, Event{
		Type:        "client_approved",
		Message:     "Client Acme approuvé",
		Payload:     map[string]any{"accountNumber": "0001"},
		RecipientID: &recipient,
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.Type != "client_approved" || got.Payload["accountNumber"] != "0001" {
		t.Errorf("Unexpected event %+v", got)
	}
}

func TestHubSinkWithoutConnectionsIsNotAnError(t *testing.T) {
	hub := websocket.NewHub(nil)
	other := uint(99)
	if err := NewHubSink(hub).Publish(context.Background(), Event{Type: "client_submitted", RecipientID: &other}); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	if err := NewHubSink(hub).Publish(context.Background(), Event{Type: "client_submitted"}); err != nil {
		t.Errorf("Expected nil for broadcast, got %v", err)
	}
}
