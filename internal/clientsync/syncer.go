// Package clientsync keeps a client-side snapshot of a blitz session current.
//
// The snapshot is refetched on three triggers: a refresh signal from the
// realtime channel, an explicit Refresh after the client's own mutation, and
// a periodic poll that covers signals lost while disconnected. Every trigger
// leads to a full refetch; the realtime channel never carries content.
package clientsync

import (
	"context"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
)

// Fetcher loads the caller's view of a session.
type Fetcher interface {
	FetchState(ctx context.Context, sessionID string) (domain.State, error)
}

// Options tune a Syncer.
type Options struct {
	PollInterval time.Duration // zero disables polling
	// OnChange is called from the Run goroutine whenever the fetched state differs.
	OnChange func(domain.State)
}

type Syncer struct {
	fetcher   Fetcher
	sessionID string
	opts      Options
	kick      chan struct{}

	mu    sync.RWMutex
	state domain.State
	have  bool
}

func NewSyncer(fetcher Fetcher, sessionID string, opts Options) *Syncer {
	return &Syncer{
		fetcher:   fetcher,
		sessionID: sessionID,
		opts:      opts,
		kick:      make(chan struct{}, 1),
	}
}

// Snapshot returns the last fetched state, if any.
func (s *Syncer) Snapshot() (domain.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.have
}

// Refresh asks Run to refetch. Requests made while one is pending coalesce.
func (s *Syncer) Refresh() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run fetches once and then on every trigger until ctx is done. events may be nil.
func (s *Syncer) Run(ctx context.Context, events <-chan domain.RefreshEvent) error {
	s.fetch(ctx)

	var poll <-chan time.Time
	if s.opts.PollInterval > 0 {
		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll:
			s.fetch(ctx)
		case <-s.kick:
			s.fetch(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.SessionID != s.sessionID {
				continue
			}
			s.fetch(ctx)
		}
	}
}

func (s *Syncer) fetch(ctx context.Context) {
	state, err := s.fetcher.FetchState(ctx, s.sessionID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("refetch session %s: %v", s.sessionID, err)
		}
		return
	}

	s.mu.Lock()
	changed := !s.have || !reflect.DeepEqual(s.state, state)
	s.state, s.have = state, true
	s.mu.Unlock()

	if changed && s.opts.OnChange != nil {
		s.opts.OnChange(state)
	}
}
