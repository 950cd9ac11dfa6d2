package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/app"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel carries refresh signals between server instances.
const DefaultChannel = "blitz:refresh"

// DefaultPublishTimeout bounds how long a broadcast may hold up the caller.
const DefaultPublishTimeout = 300 * time.Millisecond

// Relay fans refresh signals out across instances through Redis pub/sub.
// Every instance publishes on BroadcastRefresh and feeds what it receives
// into its local hub from Run.
type Relay struct {
	client         *redis.Client
	channel        string
	fallback       app.Notifier
	publishTimeout time.Duration
	newBackOff     func() backoff.BackOff
}

// NewRelay builds a relay. fallback, if set, is signalled directly when a
// publish fails so that local subscribers still hear about the change.
func NewRelay(client *redis.Client, channel string, fallback app.Notifier) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{
		client:         client,
		channel:        channel,
		fallback:       fallback,
		publishTimeout: DefaultPublishTimeout,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// WithPublishTimeout replaces the per-broadcast publish timeout.
func (r *Relay) WithPublishTimeout(d time.Duration) *Relay {
	if d > 0 {
		r.publishTimeout = d
	}
	return r
}

// WithBackOff replaces the policy used to retry the initial subscribe.
func (r *Relay) WithBackOff(newBackOff func() backoff.BackOff) *Relay {
	r.newBackOff = newBackOff
	return r
}

func (r *Relay) BroadcastRefresh(sessionID string) {
	payload, err := json.Marshal(domain.NewRefreshEvent(sessionID))
	if err != nil {
		log.Printf("encode refresh for %s: %v", sessionID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		log.Printf("publish refresh for %s: %v", sessionID, err)
		if r.fallback != nil {
			r.fallback.BroadcastRefresh(sessionID)
		}
	}
}

// Run delivers relayed refresh signals to sink until ctx is done. The first
// subscribe is retried with backoff so a relay started while Redis is down
// begins delivering once Redis is reachable. Later connection drops are
// handled by the client's own resubscribe.
func (r *Relay) Run(ctx context.Context, sink app.Notifier) error {
	sub, err := r.subscribe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev domain.RefreshEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("relay: drop malformed payload: %v", err)
				continue
			}
			if ev.Event != domain.EventSessionRefresh || ev.SessionID == "" {
				continue
			}
			sink.BroadcastRefresh(ev.SessionID)
		}
	}
}

func (r *Relay) subscribe(ctx context.Context) (*redis.PubSub, error) {
	op := func() (*redis.PubSub, error) {
		sub := r.client.Subscribe(ctx, r.channel)
		// wait for the subscription to be confirmed
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
		}
		return sub, nil
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("relay: %v, retrying in %s", err, wait)
	}
	return backoff.RetryNotifyWithData(op, backoff.WithContext(r.newBackOff(), ctx), notify)
}
