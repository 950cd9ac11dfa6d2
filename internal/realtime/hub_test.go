package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
)

func TestBroadcastReachesOnlySessionSubscribers(t *testing.T) {
	hub := NewHub()
	a := NewSubscription(1)
	b := NewSubscription(1)
	hub.Subscribe("s1", a)
	hub.Subscribe("s2", b)

	hub.BroadcastRefresh("s1")

	select {
	case ev := <-a.Events():
		if ev.Event != domain.EventSessionRefresh || ev.SessionID != "s1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected refresh for s1")
	}
	select {
	case ev := <-b.Events():
		t.Fatalf("s2 subscriber should not receive %+v", ev)
	default:
	}
}

func TestBroadcastNeverBlocksOnFullInbox(t *testing.T) {
	hub := NewHub()
	slow := NewSubscription(1)
	hub.Subscribe("s1", slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.BroadcastRefresh("s1")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked on a slow subscriber")
	}
	if len(slow.Events()) != 1 {
		t.Fatalf("expected exactly one coalesced refresh pending, got %d", len(slow.Events()))
	}
}

func TestSubscribeMovesBetweenSessions(t *testing.T) {
	hub := NewHub()
	sub := NewSubscription(1)
	hub.Subscribe("s1", sub)
	hub.Subscribe("s2", sub)

	if hub.Subscribers("s1") != 0 || hub.Subscribers("s2") != 1 {
		t.Fatalf("expected subscription moved, s1=%d s2=%d", hub.Subscribers("s1"), hub.Subscribers("s2"))
	}
	hub.BroadcastRefresh("s1")
	if len(sub.Events()) != 0 {
		t.Fatalf("moved subscription must not hear the old session")
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	hub := NewHub()
	sub := NewSubscription(1)
	hub.Subscribe("s1", sub)
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	if _, ok := <-sub.Events(); ok {
		t.Fatalf("expected closed channel")
	}
	hub.Subscribe("s1", sub)
	if hub.Subscribers("s1") != 0 {
		t.Fatalf("closed subscription must not be re-attached")
	}
	hub.BroadcastRefresh("s1")
}

func TestConcurrentSubscribeAndBroadcast(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := NewSubscription(1)
			hub.Subscribe("s1", sub)
			hub.Unsubscribe(sub)
		}()
		go func() {
			defer wg.Done()
			hub.BroadcastRefresh("s1")
		}()
	}
	wg.Wait()
	if hub.Subscribers("s1") != 0 {
		t.Fatalf("expected all subscriptions gone, got %d", hub.Subscribers("s1"))
	}
}
