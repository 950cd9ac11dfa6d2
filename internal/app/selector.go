package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
)

// QuestionSelector draws the ordered question set for a new session.
type QuestionSelector struct {
	decks DeckRepository

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionSelector(decks DeckRepository) *QuestionSelector {
	return &QuestionSelector{
		decks: decks,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Select returns up to count questions drawn without repetition from the deck,
// positioned 1..N in draw order. Ids and session ids are left for the caller.
func (s *QuestionSelector) Select(ctx context.Context, deckID string, count int, weights Weights) ([]domain.Question, error) {
	deck, err := s.decks.GetDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}

	eligible := make([]domain.Card, 0, len(deck.Cards))
	for _, c := range deck.Cards {
		if c.Eligible() {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil, domain.ErrDeckEmpty
	}
	if count > len(eligible) {
		count = len(eligible)
	}

	s.mu.Lock()
	order := s.rnd.Perm(len(eligible))[:count]
	s.mu.Unlock()

	questions := make([]domain.Question, count)
	for i, idx := range order {
		card := eligible[idx]
		questions[i] = domain.Question{
			CardID:          card.ID,
			Position:        i + 1,
			PointsCorrect:   weights.Correct,
			PointsIncorrect: weights.Incorrect,
			NativeText:      card.NativeText,
			ForeignText:     card.ForeignText,
			AudioURL:        card.AudioURL,
		}
	}
	return questions, nil
}
