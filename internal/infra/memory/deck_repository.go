package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"golang.org/x/sync/singleflight"
)

// DeckLoader fetches deck content from the deck collaborator (e.g., the CRUD database).
type DeckLoader interface {
	LoadDeck(ctx context.Context, deckID string) (domain.Deck, error)
}

// DeckRepository caches decks with TTL to avoid repeated DB hits while sessions are created.
type DeckRepository struct {
	loader DeckLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedDeck
}

type cachedDeck struct {
	deck      domain.Deck
	expiresAt time.Time
}

func NewDeckRepository(loader DeckLoader, ttl time.Duration) *DeckRepository {
	return &DeckRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedDeck),
	}
}

func (r *DeckRepository) GetDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	if deck, ok := r.cached(deckID); ok {
		return deck, nil
	}

	result, err, _ := r.sf.Do(deckID, func() (interface{}, error) {
		if deck, ok := r.cached(deckID); ok {
			return deck, nil
		}

		deck, err := r.loader.LoadDeck(ctx, deckID)
		if err != nil {
			return domain.Deck{}, err
		}
		if r.ttl <= 0 {
			return deck, nil
		}

		r.mu.Lock()
		r.cache[deckID] = cachedDeck{
			deck:      deck,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return deck, nil
	})
	if err != nil {
		return domain.Deck{}, err
	}
	return result.(domain.Deck), nil
}

// Invalidate drops a cached deck, e.g. after the deck was edited.
func (r *DeckRepository) Invalidate(deckID string) {
	r.mu.Lock()
	delete(r.cache, deckID)
	r.mu.Unlock()
}

func (r *DeckRepository) cached(deckID string) (domain.Deck, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[deckID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Deck{}, false
	}
	return entry.deck, true
}

// add up to 10% jitter to spread expirations
func (r *DeckRepository) ttlWithJitterLocked() time.Duration {
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticDeckLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticDeckLoader struct {
	decks map[string]domain.Deck
}

func NewStaticDeckLoader(decks map[string]domain.Deck) *StaticDeckLoader {
	return &StaticDeckLoader{decks: decks}
}

func (l *StaticDeckLoader) LoadDeck(_ context.Context, deckID string) (domain.Deck, error) {
	if deck, ok := l.decks[deckID]; ok {
		return deck, nil
	}
	return domain.Deck{}, domain.ErrDeckNotFound
}

// GetDeck lets the static loader serve directly as a deck repository.
func (l *StaticDeckLoader) GetDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	return l.LoadDeck(ctx, deckID)
}
