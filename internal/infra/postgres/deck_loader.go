package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// DeckLoader reads decks and their cards from the tables owned by the deck CRUD side.
type DeckLoader struct {
	pool *pgxpool.Pool
}

func NewDeckLoader(pool *pgxpool.Pool) *DeckLoader {
	return &DeckLoader{pool: pool}
}

func (l *DeckLoader) LoadDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	var id string
	err := l.pool.QueryRow(ctx, `SELECT id FROM decks WHERE id=$1`, deckID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Deck{}, domain.ErrDeckNotFound
	}
	if err != nil {
		return domain.Deck{}, fmt.Errorf("load deck: %w", err)
	}

	rows, err := l.pool.Query(ctx,
		`SELECT id, native_text, foreign_text, audio_url FROM cards WHERE deck_id=$1 ORDER BY created_at, id`, deckID)
	if err != nil {
		return domain.Deck{}, fmt.Errorf("load cards: %w", err)
	}
	defer rows.Close()

	deck := domain.Deck{ID: id}
	for rows.Next() {
		c := domain.Card{DeckID: id}
		if err := rows.Scan(&c.ID, &c.NativeText, &c.ForeignText, &c.AudioURL); err != nil {
			return domain.Deck{}, fmt.Errorf("scan card: %w", err)
		}
		deck.Cards = append(deck.Cards, c)
	}
	if err := rows.Err(); err != nil {
		return domain.Deck{}, fmt.Errorf("load cards: %w", err)
	}
	return deck, nil
}

// GetDeck lets the loader serve directly as an uncached deck repository.
func (l *DeckLoader) GetDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	return l.LoadDeck(ctx, deckID)
}
