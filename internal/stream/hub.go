// Package stream fans engine events out to websocket consumers (the map
// renderer and any other UI surface watching a session). A redis pub/sub
// bridge mirrors events across processes when redis is configured.
package stream

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix = "krawl:"
	channelSuffix = ":events"
)

// Hub tracks the websocket clients subscribed to each session and delivers
// every published event to all of them.
type Hub struct {
	redis   *redis.Client
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

// Client is one websocket consumer. Send is closed on Unregister.
type Client struct {
	SessionID string
	Send      chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.relayRedis()
	}
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionClients, ok := h.clients[client.SessionID]; ok {
		delete(sessionClients, client)
		if len(sessionClients) == 0 {
			delete(h.clients, client.SessionID)
		}
	}
	close(client.Send)
}

// Publish delivers a payload to every local client of the session and, when
// redis is configured, to other gateway processes. Slow clients are skipped
// rather than blocking the engine.
func (h *Hub) Publish(sessionID string, payload []byte) {
	h.deliverLocal(sessionID, payload)

	if h.redis != nil {
		err := h.redis.Publish(context.Background(), eventChannel(sessionID), payload).Err()
		if err != nil {
			log.Printf("stream: redis publish failed: %v", err)
		}
	}
}

// PublishJSON marshals v and publishes it. Marshal failures are logged and
// dropped; event fan-out never propagates errors into the engine.
func (h *Hub) PublishJSON(sessionID string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("stream: marshal failed: %v", err)
		return
	}
	h.Publish(sessionID, payload)
}

// deliverLocal sends while holding the read lock. Unregister closes Send
// under the write lock, so a send here can never hit a closed channel.
func (h *Hub) deliverLocal(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) relayRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		if sessionID := sessionIDFromChannel(msg.Channel); sessionID != "" {
			h.deliverLocal(sessionID, []byte(msg.Payload))
		}
	}
}

func eventChannel(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

func sessionIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
