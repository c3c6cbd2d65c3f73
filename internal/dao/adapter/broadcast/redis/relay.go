// Package redis relays cache clears between processes over a Redis pub/sub channel.
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	apperrors "firestore-dao/internal/shared/errors"
	"firestore-dao/internal/shared/logger"
)

// ClearAller drops every registered cache.
type ClearAller interface {
	ClearAll() int
}

// Message is the payload published on the channel.
type Message struct {
	Origin string    `json:"origin"`
	Reason string    `json:"reason"`
	SentAt time.Time `json:"sentAt"`
}

// Relay publishes clear requests and applies the ones sent by other processes.
type Relay struct {
	client  *redis.Client
	channel string
	manager ClearAller
	origin  string
	log     logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelay creates a relay clearing manager on every message received on channel.
func NewRelay(client *redis.Client, channel string, manager ClearAller, log logger.Logger) *Relay {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Relay{
		client:  client,
		channel: channel,
		manager: manager,
		origin:  uuid.NewString(),
		log:     log.WithComponent("cache-relay"),
	}
}

// Origin identifies this process in published messages.
func (r *Relay) Origin() string {
	return r.origin
}

// ClearAll clears the local caches and asks every other process to do the same.
// The local clear happens even when publishing fails.
func (r *Relay) ClearAll(ctx context.Context, reason string) (int, error) {
	cleared := r.manager.ClearAll()
	return cleared, r.Publish(ctx, reason)
}

// Publish sends a clear request to the other processes.
func (r *Relay) Publish(ctx context.Context, reason string) error {
	payload, err := jsoniter.MarshalToString(Message{Origin: r.origin, Reason: reason, SentAt: time.Now().UTC()})
	if err != nil {
		return apperrors.WrapError(err, "encode cache clear")
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.log.WithFields(map[string]interface{}{"channel": r.channel}).Errorf("publish cache clear failed: %v", err)
		return apperrors.WrapError(err, "publish cache clear")
	}
	r.log.Debugf("published cache clear on %s (%s)", r.channel, reason)
	return nil
}

// Start subscribes to the channel and handles messages on a background goroutine
// until Stop is called or ctx ends.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}

	sub := r.client.Subscribe(ctx, r.channel)
	// wait for the subscription confirmation so no message published after Start is lost
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return apperrors.WrapError(err, "subscribe "+r.channel)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(runCtx, sub, r.done)
	r.log.Infof("listening for cache clears on %s", r.channel)
	return nil
}

// Stop ends the subscription and waits for the handler goroutine.
func (r *Relay) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Relay) run(ctx context.Context, sub *redis.PubSub, done chan struct{}) {
	defer close(done)
	defer sub.Close()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.handle(msg.Payload)
		}
	}
}

// handle applies one payload and reports whether the local caches were cleared.
func (r *Relay) handle(payload string) bool {
	var msg Message
	if err := jsoniter.UnmarshalFromString(payload, &msg); err != nil {
		r.log.Warnf("ignoring malformed cache clear message: %v", err)
		return false
	}
	if msg.Origin == r.origin {
		return false
	}
	cleared := r.manager.ClearAll()
	r.log.WithFields(map[string]interface{}{
		"origin": msg.Origin,
		"reason": msg.Reason,
	}).Infof("cleared %d caches on remote request", cleared)
	return true
}
