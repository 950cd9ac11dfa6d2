package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/app"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/infra/postgres"
	pgmigrations "github.com/Sixtor24/Spanish-Blitz-sub000/internal/infra/postgres/migrations"
	infraredis "github.com/Sixtor24/Spanish-Blitz-sub000/internal/infra/redis"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/realtime"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

var (
	host  = domain.User{ID: "host-1", Name: "Profe", Role: "premium"}
	alice = domain.User{ID: "u-alice", Name: "Alice", Role: "free"}
	bob   = domain.User{ID: "u-bob", Name: "Bob", Role: "free"}
)

func TestBlitzSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openDB(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db, "deck-es", 4)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	// Two relays on one channel stand in for two server replicas.
	hub := realtime.NewHub()
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	listener := infraredis.NewRelay(redisClient, "blitz:it", hub)
	go func() { _ = listener.Run(runCtx, hub) }()
	waitForSubscriber(t, ctx, redisClient, "blitz:it")

	decks := infraredis.NewDeckRepository(redisClient, postgres.NewDeckLoader(pool), 5*time.Minute)
	store := postgres.NewSessionStore(db)
	coord := app.NewCoordinator(
		store,
		decks,
		app.NewRoleAuthorizer([]string{"premium"}, []string{"teacher"}),
		infraredis.NewRelay(redisClient, "blitz:it", nil),
		app.Options{},
	)

	created, err := coord.Create(ctx, host, app.CreateOptions{DeckID: "deck-es", QuestionCount: 10, TimeLimitMinutes: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sessionID := created.Session.ID
	if created.Session.QuestionCount != 4 {
		t.Fatalf("expected question count clamped to 4, got %d", created.Session.QuestionCount)
	}

	sub := realtime.NewSubscription(1)
	hub.Subscribe(sessionID, sub)
	defer hub.Unsubscribe(sub)

	aliceJoin, err := coord.Join(ctx, strings.ToLower(created.Code), "", alice)
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	expectRefresh(t, sub, sessionID)

	again, err := coord.Join(ctx, created.Code, "", alice)
	if err != nil {
		t.Fatalf("rejoin alice: %v", err)
	}
	if !again.Rejoined || again.PlayerID != aliceJoin.PlayerID {
		t.Fatalf("expected idempotent rejoin, got %+v", again)
	}

	bobJoin, err := coord.Join(ctx, created.Code, "Bobby", bob)
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}

	// Only one of several simultaneous starts may win.
	const starters = 6
	var (
		startWG  sync.WaitGroup
		startMu  sync.Mutex
		state    domain.State
		started  int
		startErr []error
	)
	for i := 0; i < starters; i++ {
		startWG.Add(1)
		go func() {
			defer startWG.Done()
			st, err := coord.Start(ctx, sessionID, host)
			startMu.Lock()
			defer startMu.Unlock()
			if err != nil {
				startErr = append(startErr, err)
				return
			}
			started++
			state = st
		}()
	}
	startWG.Wait()
	if started != 1 {
		t.Fatalf("expected exactly one start to succeed, got %d", started)
	}
	for _, err := range startErr {
		if !errors.Is(err, domain.ErrSessionNotPending) {
			t.Fatalf("expected losing starts to see not pending, got %v", err)
		}
	}
	if state.Session.Status != domain.StatusActive || state.Session.EndsAt == nil {
		t.Fatalf("expected active session with deadline, got %+v", state.Session)
	}
	if _, err := coord.Start(ctx, sessionID, host); !errors.Is(err, domain.ErrSessionNotPending) {
		t.Fatalf("expected second start to fail, got %v", err)
	}

	questions := state.Questions
	if len(questions) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(questions))
	}

	// Concurrent duplicates of one submission score once.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = coord.SubmitAnswer(ctx, sessionID, app.AnswerInput{
				PlayerID: bobJoin.PlayerID, QuestionID: questions[0].ID, IsCorrect: true,
			}, bob)
		}()
	}
	wg.Wait()

	res, err := coord.SubmitAnswer(ctx, sessionID, app.AnswerInput{
		PlayerID: bobJoin.PlayerID, QuestionID: questions[0].ID, IsCorrect: false,
	}, bob)
	if err != nil {
		t.Fatalf("duplicate submit: %v", err)
	}
	if !res.Duplicate || !res.Answer.IsCorrect || res.Score != domain.DefaultPointsCorrect {
		t.Fatalf("expected stored correct answer and score %d, got %+v", domain.DefaultPointsCorrect, res)
	}

	answerAll(t, ctx, coord, sessionID, created.HostPlayerID, host, questions)
	answerAll(t, ctx, coord, sessionID, aliceJoin.PlayerID, alice, questions)

	if err := coord.KickPlayer(ctx, sessionID, bobJoin.PlayerID, host); err != nil {
		t.Fatalf("kick bob: %v", err)
	}
	_, _, err = store.AddPlayer(ctx, domain.Player{
		ID: "bob-again", SessionID: sessionID, UserID: bob.ID, State: domain.PlayerPlaying, JoinedAt: time.Now(),
	}, 0)
	if !errors.Is(err, domain.ErrPlayerKicked) {
		t.Fatalf("expected kicked user to stay out, got %v", err)
	}

	state, err = coord.GetState(ctx, sessionID, alice)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Session.Status != domain.StatusCompleted {
		t.Fatalf("expected completion after kicking the last unfinished player, got %s", state.Session.Status)
	}
	if len(state.Players) != 2 {
		t.Fatalf("expected host and alice to remain, got %+v", state.Players)
	}

	history, err := coord.History(ctx, sessionID, host)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 9 {
		t.Fatalf("expected kicked player's answer kept in history, got %d answers", len(history))
	}

	if _, err := coord.Join(ctx, created.Code, "", domain.User{ID: "late", Role: "free"}); !errors.Is(err, domain.ErrSessionCompleted) {
		t.Fatalf("expected join on completed session to fail, got %v", err)
	}
}

func TestExpirySweepEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := openDB(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db, "deck-short", 3)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	coord := app.NewCoordinator(
		postgres.NewSessionStore(db),
		postgres.NewDeckLoader(pool),
		app.NewRoleAuthorizer([]string{"premium"}, nil),
		nil,
		app.Options{},
	).WithClock(clock)

	created, err := coord.Create(ctx, host, app.CreateOptions{DeckID: "deck-short", TimeLimitMinutes: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := coord.Join(ctx, created.Code, "", alice); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := coord.Start(ctx, created.Session.ID, host); err != nil {
		t.Fatalf("start: %v", err)
	}

	if n, err := coord.ExpireDue(ctx); err != nil || n != 0 {
		t.Fatalf("expected nothing to expire yet, got n=%d err=%v", n, err)
	}

	mu.Lock()
	now = now.Add(61 * time.Second)
	mu.Unlock()

	state, err := coord.GetState(ctx, created.Session.ID, alice)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !state.Expired || state.Session.Status != domain.StatusActive {
		t.Fatalf("expected lazily expired active session, got expired=%v status=%s", state.Expired, state.Session.Status)
	}

	if n, err := coord.ExpireDue(ctx); err != nil || n != 1 {
		t.Fatalf("expected one expired session, got n=%d err=%v", n, err)
	}
	if n, err := coord.ExpireDue(ctx); err != nil || n != 0 {
		t.Fatalf("expected sweep to be idempotent, got n=%d err=%v", n, err)
	}
}

func TestDeckLoaderMissingDeck(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := openDB(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db, "deck-present", 1)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	if _, err := postgres.NewDeckLoader(pool).LoadDeck(ctx, "nope"); !errors.Is(err, domain.ErrDeckNotFound) {
		t.Fatalf("expected ErrDeckNotFound, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "blitz", "POSTGRES_PASSWORD": "blitzpass", "POSTGRES_DB": "blitzdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://blitz:blitzpass@%s:%s/blitzdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func openDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// migrateAndSeed applies all migrations and inserts a deck with n cards.
func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB, deckID string, n int) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO decks (id, title) VALUES (?, ?)`, deckID, "Spanish basics"); err != nil {
		t.Fatalf("insert deck: %v", err)
	}
	for i := 1; i <= n; i++ {
		_, err := db.ExecContext(ctx,
			`INSERT INTO cards (id, deck_id, native_text, foreign_text) VALUES (?, ?, ?, ?)`,
			fmt.Sprintf("%s-card-%d", deckID, i), deckID, fmt.Sprintf("word %d", i), fmt.Sprintf("palabra %d", i))
		if err != nil {
			t.Fatalf("insert card: %v", err)
		}
	}
}

func answerAll(t *testing.T, ctx context.Context, coord *app.Coordinator, sessionID, playerID string, user domain.User, questions []domain.QuestionView) {
	t.Helper()
	for _, q := range questions {
		if _, err := coord.SubmitAnswer(ctx, sessionID, app.AnswerInput{
			PlayerID: playerID, QuestionID: q.ID, IsCorrect: q.Position%2 == 1,
		}, user); err != nil {
			t.Fatalf("%s submit %d: %v", user.ID, q.Position, err)
		}
	}
}

func expectRefresh(t *testing.T, sub *realtime.Subscription, sessionID string) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		if ev.SessionID != sessionID || ev.Event != domain.EventSessionRefresh {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no refresh relayed for session %s", sessionID)
	}
}

func waitForSubscriber(t *testing.T, ctx context.Context, client *goredis.Client, channel string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		counts, err := client.PubSubNumSub(ctx, channel).Result()
		if err == nil && counts[channel] > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("relay never subscribed to %s", channel)
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
