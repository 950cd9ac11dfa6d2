package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/metrics"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/realtime"
	"github.com/gorilla/websocket"
)

const (
	EventSubscribed = "session:subscribed"
	EventError      = "error"

	maxInboundBytes = 4096
)

// MembershipChecker confirms that a user belongs to a session before it may subscribe.
type MembershipChecker interface {
	Membership(ctx context.Context, sessionID string, user domain.User) (domain.Player, error)
}

// WSOptions tune the realtime connection.
type WSOptions struct {
	SubscriberBuffer int
	WriteTimeout     time.Duration
	PingInterval     time.Duration // zero disables keepalive pings
}

type WSHandler struct {
	hub      *realtime.Hub
	members  MembershipChecker
	auth     *Authenticator
	opts     WSOptions
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub, members MembershipChecker, auth *Authenticator, opts WSOptions) *WSHandler {
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = 1
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &WSHandler{
		hub:     hub,
		members: members,
		auth:    auth,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type outboundMessage struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ServeWS upgrades authenticated requests and relays refresh signals for the
// session the client subscribes to. No session content goes over the socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	metrics.RealtimeConnections.Inc()
	defer metrics.RealtimeConnections.Dec()

	sub := realtime.NewSubscription(h.opts.SubscriberBuffer)
	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})
	forwardDone := make(chan struct{})

	// Only this goroutine writes to conn.
	go func() {
		defer close(writerDone)
		var ping <-chan time.Time
		if h.opts.PingInterval > 0 {
			ticker := time.NewTicker(h.opts.PingInterval)
			defer ticker.Stop()
			ping = ticker.C
		}
		for {
			select {
			case msg, ok := <-send:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(h.opts.WriteTimeout))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					_ = conn.Close()
					return
				}
			case <-ping:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	push := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(forwardDone)
		for ev := range sub.Events() {
			push(outboundMessage{Event: ev.Event, SessionID: ev.SessionID})
		}
	}()

	conn.SetReadLimit(maxInboundBytes)
	if h.opts.PingInterval > 0 {
		wait := 2 * h.opts.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "subscribe":
			if inbound.SessionID == "" {
				push(outboundMessage{Event: EventError, Message: "sessionId is required"})
				continue
			}
			if _, err := h.members.Membership(r.Context(), inbound.SessionID, user); err != nil {
				push(outboundMessage{Event: EventError, SessionID: inbound.SessionID, Message: err.Error()})
				continue
			}
			h.hub.Subscribe(inbound.SessionID, sub)
			push(outboundMessage{Event: EventSubscribed, SessionID: inbound.SessionID})
		default:
			push(outboundMessage{Event: EventError, Message: "unsupported message type"})
		}
	}

	h.hub.Unsubscribe(sub)
	<-forwardDone
	close(send)
	<-writerDone
}
