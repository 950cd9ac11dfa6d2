package cli

import (
	"context"
	"log"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/app"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/config"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/infra/memory"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/infra/postgres"
	infraredis "github.com/Sixtor24/Spanish-Blitz-sub000/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

// backends holds the storage chosen from config. Empty connection settings
// fall back to in-process implementations for single-node development.
type backends struct {
	store app.SessionStore
	decks app.DeckRepository
	redis *redis.Client
	pool  *pgxpool.Pool
	db    *bun.DB
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:                  cfg.Redis.Addr,
			Password:              cfg.Redis.Password,
			DB:                    cfg.Redis.DB,
			ContextTimeoutEnabled: true,
		})
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.pool = pool
		b.db = openDB(cfg.Postgres.URL)
	}

	var loader memory.DeckLoader = memory.NewStaticDeckLoader(sampleDecks())
	if b.pool != nil {
		loader = postgres.NewDeckLoader(b.pool)
	}

	deckTTL := config.TTLDuration(cfg.Deck.TTL, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
	if b.redis != nil {
		b.decks = infraredis.NewDeckRepository(b.redis, loader, deckTTL)
	} else {
		b.decks = memory.NewDeckRepository(loader, deckTTL)
	}

	if b.db != nil {
		b.store = postgres.NewSessionStore(b.db)
	} else {
		log.Printf("postgres not configured, sessions are kept in memory")
		b.store = memory.NewSessionStore()
	}
	return b, nil
}

func (b *backends) Close() {
	if b.db != nil {
		_ = b.db.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func coordinatorOptions(cfg config.Config) app.Options {
	opts := app.Options{
		MinPlayers:           cfg.Blitz.MinPlayers,
		AllowSolo:            cfg.Blitz.AllowSolo,
		MaxPlayers:           cfg.Blitz.MaxPlayers,
		DefaultQuestionCount: cfg.Blitz.DefaultQuestionCount,
		MaxQuestionCount:     cfg.Blitz.MaxQuestionCount,
		MaxTimeLimitMinutes:  cfg.Blitz.MaxTimeLimitMinutes,
		CodeRetries:          cfg.Blitz.CodeRetries,
	}
	if cfg.Blitz.PointsCorrect != 0 || cfg.Blitz.PointsIncorrect != 0 {
		opts.Weights = app.Weights{Correct: cfg.Blitz.PointsCorrect, Incorrect: cfg.Blitz.PointsIncorrect}
	}
	return opts
}

func hostRoles(cfg config.Config) (host, teacher []string) {
	host, teacher = cfg.Auth.HostRoles, cfg.Auth.TeacherRoles
	if len(host) == 0 {
		host = []string{"premium", "teacher", "admin"}
	}
	if len(teacher) == 0 {
		teacher = []string{"teacher", "admin"}
	}
	return host, teacher
}

// sampleDecks seeds the static loader used when no deck database is configured.
func sampleDecks() map[string]domain.Deck {
	cards := []domain.Card{
		{ID: "demo-1", NativeText: "dog", ForeignText: "perro"},
		{ID: "demo-2", NativeText: "cat", ForeignText: "gato"},
		{ID: "demo-3", NativeText: "house", ForeignText: "casa"},
		{ID: "demo-4", NativeText: "water", ForeignText: "agua"},
		{ID: "demo-5", NativeText: "book", ForeignText: "libro"},
		{ID: "demo-6", NativeText: "friend", ForeignText: "amigo"},
		{ID: "demo-7", NativeText: "to eat", ForeignText: "comer"},
		{ID: "demo-8", NativeText: "to speak", ForeignText: "hablar"},
	}
	for i := range cards {
		cards[i].DeckID = "demo"
	}
	return map[string]domain.Deck{"demo": {ID: "demo", Cards: cards}}
}
