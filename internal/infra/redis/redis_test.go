package redis

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

func TestDeckRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		DeckLoader: memory.NewStaticDeckLoader(map[string]domain.Deck{
			"deck-1": sampleDeck(),
		}),
	}
	repo := NewDeckRepository(newClient(mr), loader, time.Minute)

	deck, err := repo.GetDeck(context.Background(), "deck-1")
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls.Load())
	}
	if !mr.Exists("deck:deck-1:cards") {
		t.Fatalf("expected redis hash to be written")
	}
	if ttl := mr.TTL("deck:deck-1:cards"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with jitter, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetDeck(context.Background(), "deck-1")
	if err != nil {
		t.Fatalf("get cached deck: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}
	if len(cached.Cards) != len(deck.Cards) || cached.Cards[1].ForeignText != "gato" {
		t.Fatalf("cached deck differs: %+v", cached)
	}

	if err := repo.Invalidate(context.Background(), "deck-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = repo.GetDeck(context.Background(), "deck-1")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls.Load())
	}
}

func TestDeckRepositoryPassesLoaderErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewDeckRepository(newClient(mr), memory.NewStaticDeckLoader(nil), time.Minute)
	if _, err := repo.GetDeck(context.Background(), "missing"); !errors.Is(err, domain.ErrDeckNotFound) {
		t.Fatalf("expected deck not found, got %v", err)
	}
}

func TestRelayDeliversAcrossInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	sink := &sinkRecorder{got: make(chan string, 4)}
	subscriber := NewRelay(newClient(mr), "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- subscriber.Run(ctx, sink) }()
	waitForSubscriber(t, mr, DefaultChannel)

	publisher := NewRelay(newClient(mr), DefaultChannel, nil)
	publisher.BroadcastRefresh("s1")

	select {
	case id := <-sink.got:
		if id != "s1" {
			t.Fatalf("expected s1, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for relayed refresh")
	}

	mr.Publish(DefaultChannel, "not json")
	mr.Publish(DefaultChannel, `{"event":"other","sessionId":"s2"}`)
	publisher.BroadcastRefresh("s3")
	select {
	case id := <-sink.got:
		if id != "s3" {
			t.Fatalf("expected malformed and foreign payloads dropped, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for second refresh")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not stop")
	}
}

func TestRelayFallsBackWhenPublishFails(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	local := &sinkRecorder{got: make(chan string, 1)}
	NewRelay(client, "", local).BroadcastRefresh("s1")

	select {
	case id := <-local.got:
		if id != "s1" {
			t.Fatalf("expected s1, got %s", id)
		}
	default:
		t.Fatalf("expected local fallback to be signalled")
	}
}

func TestRelayStartsDeliveringAfterRedisComesUp(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := newClient(mr)
	mr.Close()

	sink := &sinkRecorder{got: make(chan string, 1)}
	subscriber := NewRelay(client, "", nil).WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(20 * time.Millisecond)
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- subscriber.Run(ctx, sink) }()

	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("relay gave up while redis was down: %v", err)
	default:
	}

	if err := mr.Restart(); err != nil {
		t.Fatalf("restart miniredis: %v", err)
	}
	waitForSubscriber(t, mr, DefaultChannel)

	NewRelay(newClient(mr), "", nil).BroadcastRefresh("s1")
	select {
	case id := <-sink.got:
		if id != "s1" {
			t.Fatalf("expected s1, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for relayed refresh")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not stop")
	}
}

func TestRelayStopsRetryingWhenCancelled(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	relay := NewRelay(client, "", nil).WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(20 * time.Millisecond)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := relay.Run(ctx, &sinkRecorder{got: make(chan string, 1)}); err != nil {
		t.Fatalf("expected clean stop on cancel, got %v", err)
	}
}

func TestBroadcastRefreshIsBoundedByPublishTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	// accept connections and never answer
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	}()

	client := redis.NewClient(&redis.Options{
		Addr:                  ln.Addr().String(),
		MaxRetries:            -1,
		ContextTimeoutEnabled: true,
	})
	defer client.Close()

	local := &sinkRecorder{got: make(chan string, 1)}
	relay := NewRelay(client, "", local).WithPublishTimeout(100 * time.Millisecond)

	start := time.Now()
	relay.BroadcastRefresh("s1")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("broadcast blocked for %v", elapsed)
	}
	select {
	case id := <-local.got:
		if id != "s1" {
			t.Fatalf("expected s1, got %s", id)
		}
	default:
		t.Fatalf("expected local fallback after publish timeout")
	}
}

type countingLoader struct {
	memory.DeckLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	l.calls.Add(1)
	return l.DeckLoader.LoadDeck(ctx, deckID)
}

type sinkRecorder struct {
	mu  sync.Mutex
	got chan string
}

func (s *sinkRecorder) BroadcastRefresh(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got <- sessionID
}

func waitForSubscriber(t *testing.T, mr *miniredis.Miniredis, channel string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mr.PubSubNumSub(channel)[channel] > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no subscriber on %s", channel)
}

func sampleDeck() domain.Deck {
	return domain.Deck{
		ID: "deck-1",
		Cards: []domain.Card{
			{ID: "c1", DeckID: "deck-1", NativeText: "dog", ForeignText: "perro"},
			{ID: "c2", DeckID: "deck-1", NativeText: "cat", ForeignText: "gato"},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                  mr.Addr(),
		ContextTimeoutEnabled: true,
	})
}
