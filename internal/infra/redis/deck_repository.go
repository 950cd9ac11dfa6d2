package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DeckRepository caches deck cards in Redis (hash per deck) and falls back to a loader on cache miss.
// Cards are stored as: HSET deck:{deckID}:cards {cardID} {card json}
type DeckRepository struct {
	client *redis.Client
	loader memory.DeckLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewDeckRepository(client *redis.Client, loader memory.DeckLoader, ttl time.Duration) *DeckRepository {
	return &DeckRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *DeckRepository) GetDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	key := r.cardsKey(deckID)
	if deck, ok := r.fromCache(ctx, deckID, key); ok {
		return deck, nil
	}

	result, err, _ := r.sf.Do(deckID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if deck, ok := r.fromCache(ctx, deckID, key); ok {
			return deck, nil
		}

		deck, err := r.loader.LoadDeck(ctx, deckID)
		if err != nil {
			return domain.Deck{}, err
		}
		if len(deck.Cards) == 0 {
			return deck, nil
		}

		pipe := r.client.Pipeline()
		for _, c := range deck.Cards {
			raw, err := json.Marshal(c)
			if err != nil {
				return domain.Deck{}, fmt.Errorf("encode card %s: %w", c.ID, err)
			}
			pipe.HSet(ctx, key, c.ID, raw)
		}
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// a failed write only costs a reload next time
		_, _ = pipe.Exec(ctx)

		return deck, nil
	})
	if err != nil {
		return domain.Deck{}, err
	}
	return result.(domain.Deck), nil
}

// Invalidate drops the cached cards of a deck.
func (r *DeckRepository) Invalidate(ctx context.Context, deckID string) error {
	return r.client.Del(ctx, r.cardsKey(deckID)).Err()
}

func (r *DeckRepository) fromCache(ctx context.Context, deckID, key string) (domain.Deck, bool) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil || len(fields) == 0 {
		return domain.Deck{}, false
	}
	cards := make([]domain.Card, 0, len(fields))
	for cardID, raw := range fields {
		var c domain.Card
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return domain.Deck{}, false
		}
		c.ID = cardID
		cards = append(cards, c)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return domain.Deck{ID: deckID, Cards: cards}, true
}

func (r *DeckRepository) cardsKey(deckID string) string {
	return "deck:" + deckID + ":cards"
}

func (r *DeckRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
