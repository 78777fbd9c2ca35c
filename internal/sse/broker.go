package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/brightpath/safety-engine/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 64
)

const (
	EventAlertRaised    = "alert_raised"
	EventAlertResolved  = "alert_resolved"
	EventAlertDismissed = "alert_dismissed"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: data}, nil
}

// PubSub is the subset of the redis client the broker needs.
type PubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type Client struct {
	ChildID string
	Events  chan Event
	Done    chan struct{}
}

type feed struct {
	clients map[*Client]struct{}
	cancel  context.CancelFunc
}

// Broker fans alert events from redis out to the SSE clients of this process.
// Each child with at least one listener holds one redis subscription.
type Broker struct {
	redis  PubSub
	feeds  map[string]*feed
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBroker(client PubSub) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:  client,
		feeds:  make(map[string]*feed),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *Broker) Subscribe(childID string) *Client {
	client := &Client{
		ChildID: childID,
		Events:  make(chan Event, clientBufferSize),
		Done:    make(chan struct{}),
	}

	b.mu.Lock()
	f, ok := b.feeds[childID]
	if !ok {
		ctx, cancel := context.WithCancel(b.ctx)
		f = &feed{clients: make(map[*Client]struct{}), cancel: cancel}
		b.feeds[childID] = f
		go b.listen(ctx, childID)
	}
	f.clients[client] = struct{}{}
	count := len(f.clients)
	b.mu.Unlock()

	log.Info().
		Str("childId", childID).
		Int("clientCount", count).
		Msg("Alert feed client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.feeds[client.ChildID]
	if !ok {
		return
	}
	if _, ok := f.clients[client]; !ok {
		return
	}
	delete(f.clients, client)
	close(client.Done)

	if len(f.clients) == 0 {
		f.cancel()
		delete(b.feeds, client.ChildID)
	}

	log.Info().
		Str("childId", client.ChildID).
		Int("clientCount", len(f.clients)).
		Msg("Alert feed client unsubscribed")
}

func (b *Broker) Publish(ctx context.Context, childID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.AlertChannel(childID), data).Err()
}

func (b *Broker) listen(ctx context.Context, childID string) {
	channel := redisclient.AlertChannel(childID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().Str("channel", channel).Msg("Redis pubsub subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Str("channel", channel).Msg("Failed to decode alert event")
				continue
			}
			b.broadcast(childID, event)
		}
	}
}

func (b *Broker) broadcast(childID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	f, ok := b.feeds[childID]
	if !ok {
		return
	}
	for client := range f.clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("childId", childID).
				Str("eventType", event.Type).
				Msg("Client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, f := range b.feeds {
		for client := range f.clients {
			close(client.Done)
		}
	}
	b.feeds = make(map[string]*feed)
}

func (b *Broker) ClientCount(childID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if f, ok := b.feeds[childID]; ok {
		return len(f.clients)
	}
	return 0
}
