package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHubPublish(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("session-1")
	defer hub.Unregister(client)

	hub.Publish("session-1", []byte("hello"))

	select {
	case msg := <-client.Send:
		if string(msg) != "hello" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
}

func TestHubPublishJSON(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("session-1")
	defer hub.Unregister(client)

	hub.PublishJSON("session-1", map[string]string{"type": "position"})

	select {
	case msg := <-client.Send:
		var decoded map[string]string
		if err := json.Unmarshal(msg, &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if decoded["type"] != "position" {
			t.Fatalf("unexpected payload: %v", decoded)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
}

func TestHubScopedToSession(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Register("session-a")
	defer hub.Unregister(a)
	b := hub.Register("session-b")
	defer hub.Unregister(b)

	hub.Publish("session-a", []byte("ping"))

	select {
	case <-a.Send:
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("session-a client must receive")
	}
	select {
	case <-b.Send:
		t.Fatalf("session-b client must not receive")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubChannelHelpers(t *testing.T) {
	ch := eventChannel("abc")
	if sessionIDFromChannel(ch) != "abc" {
		t.Fatalf("unexpected session id")
	}
	if sessionIDFromChannel("bad") != "" {
		t.Fatalf("expected empty session id")
	}
}

func TestHubUnregisterCloses(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("session-2")
	hub.Unregister(client)
	if _, ok := <-client.Send; ok {
		t.Fatalf("expected channel closed")
	}
}

func TestHubPublishDuringChurn(t *testing.T) {
	hub := NewHub(nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			hub.Publish("session-churn", []byte("ping"))
		}
	}()

	// Clients come and go while the publisher runs; fan-out must neither
	// race on the client map nor send on a closed channel.
	for i := 0; i < 500; i++ {
		client := hub.Register("session-churn")
		hub.Unregister(client)
	}
	<-done
}

func TestHubRedisRelay(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	hub := NewHub(client)
	ws := hub.Register("session-redis")
	defer hub.Unregister(ws)

	hub.Publish("session-redis", []byte("ping"))

	select {
	case msg := <-ws.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for publish")
	}

	// An event published by another process arrives through pub/sub.
	time.Sleep(20 * time.Millisecond)
	if err := client.Publish(context.Background(), eventChannel("session-redis"), "pong").Err(); err != nil {
		t.Fatalf("publish error: %v", err)
	}

	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case msg := <-ws.Send:
			if string(msg) == "pong" {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for relayed message")
		}
	}
}

func TestHubRedisPublishError(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	server.Close()
	defer client.Close()

	hub := NewHub(client)
	local := hub.Register("session-bad")
	defer hub.Unregister(local)

	// Local delivery still works when redis is down.
	hub.Publish("session-bad", []byte("ping"))
	select {
	case <-local.Send:
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("local delivery must survive redis failure")
	}
}
