// Package realtime fans refresh signals out to live connections.
package realtime

import (
	"sync"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/metrics"
)

// Subscription is one live connection's inbox. The channel is closed when the
// subscription is removed from the hub.
type Subscription struct {
	ch     chan domain.RefreshEvent
	closed bool // guarded by Hub.mu
}

// NewSubscription creates an inbox holding up to buffer pending signals.
// A single slot is enough: a pending refresh already covers any later one.
func NewSubscription(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}
	return &Subscription{ch: make(chan domain.RefreshEvent, buffer)}
}

// Events yields refresh signals until the subscription is removed.
func (s *Subscription) Events() <-chan domain.RefreshEvent {
	return s.ch
}

// Hub is the process-wide registry of subscriptions keyed by session id.
// It is built once by the server and shared by the coordinator and the
// websocket layer. It holds nothing that must survive a restart.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Subscription]struct{}
	owners   map[*Subscription]string
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[*Subscription]struct{}),
		owners:   make(map[*Subscription]string),
	}
}

// Subscribe attaches sub to sessionID, moving it off any previous session.
func (h *Hub) Subscribe(sessionID string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	h.detachLocked(sub)
	subs, ok := h.sessions[sessionID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.sessions[sessionID] = subs
	}
	subs[sub] = struct{}{}
	h.owners[sub] = sessionID
}

// Unsubscribe removes sub from the hub and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	h.detachLocked(sub)
	sub.closed = true
	close(sub.ch)
}

// BroadcastRefresh signals every subscriber of the session. It never blocks:
// a subscriber whose inbox is full already has a refresh pending.
func (h *Hub) BroadcastRefresh(sessionID string) {
	event := domain.NewRefreshEvent(sessionID)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.sessions[sessionID] {
		select {
		case sub.ch <- event:
			metrics.RefreshBroadcasts.Inc()
		default:
			metrics.RefreshCoalesced.Inc()
		}
	}
}

// Subscribers reports how many live subscriptions a session has.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (h *Hub) detachLocked(sub *Subscription) {
	sessionID, ok := h.owners[sub]
	if !ok {
		return
	}
	delete(h.owners, sub)
	if subs, ok := h.sessions[sessionID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}
