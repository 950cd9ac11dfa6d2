package clientsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// ErrSubscribeRejected means the server refused the subscription; retrying will not help.
var ErrSubscribeRejected = errors.New("subscription rejected")

const (
	eventSubscribed = "session:subscribed"
	eventError      = "error"
)

type socketMessage struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// Socket streams refresh signals for one session and reconnects with
// exponential backoff when the connection drops.
type Socket struct {
	url        string
	token      string
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff
}

func NewSocket(url, token string) *Socket {
	return &Socket{
		url:    url,
		token:  token,
		dialer: websocket.DefaultDialer,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// WithBackOff replaces the reconnect policy.
func (s *Socket) WithBackOff(newBackOff func() backoff.BackOff) *Socket {
	s.newBackOff = newBackOff
	return s
}

// Stream delivers refresh signals to out until ctx is done. After every
// (re)subscription it emits one synthetic refresh, since signals sent while
// disconnected are lost.
func (s *Socket) Stream(ctx context.Context, sessionID string, out chan<- domain.RefreshEvent) error {
	b := s.newBackOff()
	for {
		subscribed, err := s.session(ctx, sessionID, out)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrSubscribeRejected) {
			return err
		}
		if subscribed {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("realtime: giving up: %w", err)
		}
		log.Printf("realtime connection lost (%v), retrying in %s", err, wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// session runs one connection and reports whether it got as far as subscribing.
func (s *Socket) session(ctx context.Context, sessionID string, out chan<- domain.RefreshEvent) (bool, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)
	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "sessionId": sessionID}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	subscribed := false
	for {
		var msg socketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return subscribed, fmt.Errorf("read: %w", err)
		}
		switch msg.Event {
		case eventSubscribed:
			subscribed = true
			if !deliver(ctx, out, domain.NewRefreshEvent(sessionID)) {
				return subscribed, ctx.Err()
			}
		case domain.EventSessionRefresh:
			if !deliver(ctx, out, domain.NewRefreshEvent(msg.SessionID)) {
				return subscribed, ctx.Err()
			}
		case eventError:
			if !subscribed {
				return false, fmt.Errorf("%w: %s", ErrSubscribeRejected, msg.Message)
			}
			log.Printf("realtime error: %s", msg.Message)
		}
	}
}

func deliver(ctx context.Context, out chan<- domain.RefreshEvent, ev domain.RefreshEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
