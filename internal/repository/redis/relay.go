package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink receives events relayed from any process sharing the Redis store
type Sink interface {
	Broadcast(roomID, event string, payload any)
	Close(roomID string)
}

// relayMessage is the wire format on the pub/sub channel
type relayMessage struct {
	RoomID  string          `json:"roomId"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Closed  bool            `json:"closed,omitempty"`
}

// Relay publishes room events on a Redis channel and delivers every event on
// that channel to a local Sink. With rooms stored in Redis, observers
// connected to one process then see actions handled by another.
type Relay struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	log     *logrus.Entry
}

// NewRelay creates a relay on the channel "<keyPrefix>events"
func NewRelay(client *redis.Client, keyPrefix string, log *logrus.Entry) *Relay {
	return &Relay{
		client:  client,
		channel: keyPrefix + "events",
		timeout: 5 * time.Second,
		log:     log,
	}
}

// Broadcast publishes an event for the room
func (r *Relay) Broadcast(roomID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.WithError(err).WithField("event", event).Error("Failed to marshal relayed event")
		return
	}
	r.publish(relayMessage{RoomID: roomID, Event: event, Payload: data})
}

// Close publishes that the room no longer exists
func (r *Relay) Close(roomID string) {
	r.publish(relayMessage{RoomID: roomID, Closed: true})
}

func (r *Relay) publish(msg relayMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.WithError(err).Error("Failed to marshal relay message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.log.WithError(err).WithField("room_id", msg.RoomID).Error("Failed to publish room event")
	}
}

// Start subscribes to the channel and forwards messages to sink until ctx is
// cancelled. It returns once the subscription is confirmed, so events
// published after Start returns are not missed.
func (r *Relay) Start(ctx context.Context, sink Sink) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				r.deliver(sink, m.Payload)
			}
		}
	}()

	r.log.WithField("channel", r.channel).Info("Relay subscribed")
	return nil
}

func (r *Relay) deliver(sink Sink, payload string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.log.WithError(err).Warn("Dropping malformed relay message")
		return
	}

	if msg.Closed {
		sink.Close(msg.RoomID)
		return
	}
	sink.Broadcast(msg.RoomID, msg.Event, msg.Payload)
}
