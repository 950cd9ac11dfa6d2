package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/metrics"
	"github.com/google/uuid"
)

const maxDisplayNameLength = 40

// Options tune the coordinator rules.
type Options struct {
	MinPlayers           int  // non-spectator players needed to start a versus session
	AllowSolo            bool // lets any session start with a single player
	MaxPlayers           int  // 0 means unlimited
	DefaultQuestionCount int
	MaxQuestionCount     int
	MaxTimeLimitMinutes  int
	Weights              Weights
	CodeRetries          int
}

// DefaultOptions mirrors the production defaults.
func DefaultOptions() Options {
	return Options{
		MinPlayers:           2,
		DefaultQuestionCount: 10,
		MaxQuestionCount:     50,
		MaxTimeLimitMinutes:  60,
		Weights:              DefaultWeights,
		CodeRetries:          8,
	}
}

// CreateOptions are the host's choices for a new session.
type CreateOptions struct {
	DeckID           string
	DisplayName      string
	QuestionCount    int
	TimeLimitMinutes int
	TeacherMode      bool
	Practice         bool
	Weights          *Weights
}

// CreateResult is returned to the host after Create.
type CreateResult struct {
	Code         string                `json:"code"`
	HostPlayerID string                `json:"hostPlayerId"`
	Session      domain.SessionSummary `json:"session"`
}

// JoinResult is returned after Join.
type JoinResult struct {
	PlayerID string       `json:"playerId"`
	Rejoined bool         `json:"rejoined"`
	State    domain.State `json:"state"`
}

// AnswerInput is one answer submission.
type AnswerInput struct {
	PlayerID   string
	QuestionID string
	IsCorrect  bool
	AnswerText string
}

// SubmitResult reports the stored answer and the player's running score.
type SubmitResult struct {
	Answer        domain.AnswerView    `json:"answer"`
	Duplicate     bool                 `json:"duplicate"`
	Score         int                  `json:"score"`
	SessionStatus domain.SessionStatus `json:"sessionStatus"`
}

// Coordinator is the state machine authority for blitz sessions. Every
// mutation goes to the store first and is then announced through the notifier.
type Coordinator struct {
	store    SessionStore
	selector *QuestionSelector
	codes    *CodeGenerator
	auth     Authorizer
	notifier Notifier
	opts     Options
	now      func() time.Time
	newID    func() string
}

func NewCoordinator(store SessionStore, decks DeckRepository, auth Authorizer, notifier Notifier, opts Options) *Coordinator {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	defaults := DefaultOptions()
	if opts.MinPlayers <= 0 {
		opts.MinPlayers = defaults.MinPlayers
	}
	if opts.DefaultQuestionCount <= 0 {
		opts.DefaultQuestionCount = defaults.DefaultQuestionCount
	}
	if opts.MaxQuestionCount <= 0 {
		opts.MaxQuestionCount = defaults.MaxQuestionCount
	}
	if opts.MaxTimeLimitMinutes <= 0 {
		opts.MaxTimeLimitMinutes = defaults.MaxTimeLimitMinutes
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = defaults.Weights
	}
	if opts.CodeRetries <= 0 {
		opts.CodeRetries = defaults.CodeRetries
	}
	return &Coordinator{
		store:    store,
		selector: NewQuestionSelector(decks),
		codes:    NewCodeGenerator(store, opts.CodeRetries),
		auth:     auth,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock swaps the time source; used by tests for deterministic timestamps.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Create opens a pending session with a frozen question set and the host's player row.
func (c *Coordinator) Create(ctx context.Context, host domain.User, opts CreateOptions) (CreateResult, error) {
	if host.ID == "" {
		return CreateResult{}, domain.ErrUnauthenticated
	}
	if !c.auth.CanHost(ctx, host, opts.TeacherMode) {
		return CreateResult{}, domain.ErrNotHostEligible
	}
	deckID := strings.TrimSpace(opts.DeckID)
	if deckID == "" {
		return CreateResult{}, fmt.Errorf("%w: deck id is required", domain.ErrInvalidArgument)
	}

	count := opts.QuestionCount
	if count <= 0 {
		count = c.opts.DefaultQuestionCount
	}
	count = clamp(count, 1, c.opts.MaxQuestionCount)
	limit := time.Duration(clamp(opts.TimeLimitMinutes, 0, c.opts.MaxTimeLimitMinutes)) * time.Minute

	weights := c.opts.Weights
	if opts.Weights != nil {
		weights = *opts.Weights
	}

	questions, err := c.selector.Select(ctx, deckID, count, weights)
	if err != nil {
		return CreateResult{}, err
	}

	now := c.now()
	mode := domain.ModeVersus
	if opts.Practice {
		mode = domain.ModePractice
	}
	session := domain.Session{
		ID:              c.newID(),
		DeckID:          deckID,
		HostUserID:      host.ID,
		Mode:            mode,
		IsTeacher:       opts.TeacherMode,
		QuestionCount:   len(questions),
		TimeLimit:       limit,
		PointsCorrect:   weights.Correct,
		PointsIncorrect: weights.Incorrect,
		Status:          domain.StatusPending,
		CreatedAt:       now,
	}
	hostPlayer := domain.Player{
		ID:          c.newID(),
		SessionID:   session.ID,
		UserID:      host.ID,
		DisplayName: displayName(opts.DisplayName, host.Name, "Host"),
		IsHost:      true,
		State:       domain.PlayerPlaying,
		JoinedAt:    now,
	}
	if hostPlayer.IsSpectator(session) {
		hostPlayer.State = domain.PlayerFinished
	}
	for i := range questions {
		questions[i].ID = c.newID()
		questions[i].SessionID = session.ID
	}

	for attempt := 0; attempt < c.opts.CodeRetries; attempt++ {
		code, err := c.codes.Generate(ctx)
		if err != nil {
			return CreateResult{}, err
		}
		session.Code = code
		err = c.store.CreateSession(ctx, session, hostPlayer, questions)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return CreateResult{}, fmt.Errorf("create session: %w", err)
		}
		metrics.SessionsCreated.Inc()
		log.Printf("blitz session %s created by %s (code %s, %d questions)", session.ID, host.ID, code, len(questions))
		return CreateResult{
			Code:         code,
			HostPlayerID: hostPlayer.ID,
			Session:      domain.Summarize(session),
		}, nil
	}
	return CreateResult{}, domain.ErrCodeSpaceExhausted
}

// Join admits the user into the session behind code. Joining again returns
// the existing membership. A user kicked from the session cannot join it again.
func (c *Coordinator) Join(ctx context.Context, code, name string, user domain.User) (JoinResult, error) {
	if user.ID == "" {
		return JoinResult{}, domain.ErrUnauthenticated
	}
	normalized, ok := NormalizeCode(code)
	if !ok {
		return JoinResult{}, domain.ErrSessionNotFound
	}
	session, err := c.store.SessionByCode(ctx, normalized)
	if err != nil {
		return JoinResult{}, err
	}

	player, err := c.store.PlayerByUser(ctx, session.ID, user.ID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPlayerNotFound):
		if session.Status == domain.StatusCompleted {
			return JoinResult{}, domain.ErrSessionCompleted
		}
		player, created, err = c.store.AddPlayer(ctx, domain.Player{
			ID:          c.newID(),
			SessionID:   session.ID,
			UserID:      user.ID,
			DisplayName: displayName(name, user.Name, "Player"),
			State:       domain.PlayerPlaying,
			JoinedAt:    c.now(),
		}, c.opts.MaxPlayers)
		if err != nil {
			return JoinResult{}, err
		}
	default:
		return JoinResult{}, err
	}

	if created {
		metrics.PlayersJoined.Inc()
		c.notifier.BroadcastRefresh(session.ID)
	}

	state, err := c.GetState(ctx, session.ID, user)
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{PlayerID: player.ID, Rejoined: !created, State: state}, nil
}

// Start moves a pending session to active. Only the host may start it.
func (c *Coordinator) Start(ctx context.Context, sessionID string, caller domain.User) (domain.State, error) {
	session, err := c.store.SessionByID(ctx, sessionID)
	if err != nil {
		return domain.State{}, err
	}
	if session.HostUserID != caller.ID {
		return domain.State{}, domain.ErrNotSessionHost
	}
	if session.Status != domain.StatusPending {
		return domain.State{}, domain.ErrSessionNotPending
	}

	players, err := c.store.ListPlayers(ctx, session.ID)
	if err != nil {
		return domain.State{}, err
	}
	competitors := 0
	for _, p := range players {
		if !p.IsSpectator(session) {
			competitors++
		}
	}
	required := c.opts.MinPlayers
	if session.Mode == domain.ModePractice || c.opts.AllowSolo {
		required = 1
	}
	if competitors < required {
		return domain.State{}, domain.ErrNotEnoughPlayers
	}

	now := c.now()
	var endsAt *time.Time
	if session.TimeLimit > 0 {
		t := now.Add(session.TimeLimit)
		endsAt = &t
	}
	won, err := c.store.MarkActive(ctx, session.ID, now, endsAt)
	if err != nil {
		return domain.State{}, fmt.Errorf("start session: %w", err)
	}
	if !won {
		return domain.State{}, domain.ErrSessionNotPending
	}
	metrics.SessionTransitions.WithLabelValues(string(domain.StatusActive), "host").Inc()
	log.Printf("blitz session %s started with %d players", session.ID, competitors)
	c.notifier.BroadcastRefresh(session.ID)

	return c.GetState(ctx, session.ID, caller)
}

// SubmitAnswer records a player's answer at most once. A repeated submission
// for the same question returns the stored answer without scoring again.
func (c *Coordinator) SubmitAnswer(ctx context.Context, sessionID string, in AnswerInput, caller domain.User) (SubmitResult, error) {
	session, err := c.store.SessionByID(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	player, err := c.store.PlayerByID(ctx, session.ID, in.PlayerID)
	if err != nil {
		return SubmitResult{}, err
	}
	if player.UserID != caller.ID {
		return SubmitResult{}, domain.ErrNotPlayerOwner
	}
	if player.IsSpectator(session) {
		return SubmitResult{}, domain.ErrSpectatorCannotAnswer
	}
	question, err := c.store.QuestionByID(ctx, session.ID, in.QuestionID)
	if err != nil {
		return SubmitResult{}, err
	}

	prior, err := c.store.AnswerFor(ctx, session.ID, player.ID, question.ID)
	switch {
	case err == nil:
		metrics.AnswersRecorded.WithLabelValues("duplicate").Inc()
		return c.duplicateResult(ctx, session, player, prior)
	case !errors.Is(err, domain.ErrAnswerNotFound):
		return SubmitResult{}, err
	}

	if session.Status != domain.StatusActive {
		return SubmitResult{}, domain.ErrSessionNotActive
	}

	stored, created, err := c.store.RecordAnswer(ctx, domain.Answer{
		ID:            c.newID(),
		SessionID:     session.ID,
		PlayerID:      player.ID,
		QuestionID:    question.ID,
		IsCorrect:     in.IsCorrect,
		PointsAwarded: Score(question, in.IsCorrect),
		AnswerText:    strings.TrimSpace(in.AnswerText),
		CreatedAt:     c.now(),
	})
	if err != nil {
		return SubmitResult{}, err
	}
	if !created {
		metrics.AnswersRecorded.WithLabelValues("duplicate").Inc()
		return c.duplicateResult(ctx, session, player, stored)
	}
	if stored.IsCorrect {
		metrics.AnswersRecorded.WithLabelValues("correct").Inc()
	} else {
		metrics.AnswersRecorded.WithLabelValues("incorrect").Inc()
	}
	c.notifier.BroadcastRefresh(session.ID)

	status, err := c.settleProgress(ctx, session, player.ID)
	if err != nil {
		return SubmitResult{}, err
	}

	score := player.Score + stored.PointsAwarded
	if fresh, err := c.store.PlayerByID(ctx, session.ID, player.ID); err == nil {
		score = fresh.Score
	}
	return SubmitResult{
		Answer:        domain.ViewAnswer(stored),
		Score:         score,
		SessionStatus: status,
	}, nil
}

func (c *Coordinator) duplicateResult(ctx context.Context, session domain.Session, player domain.Player, answer domain.Answer) (SubmitResult, error) {
	score := player.Score
	if fresh, err := c.store.PlayerByID(ctx, session.ID, player.ID); err == nil {
		score = fresh.Score
	}
	status := session.Status
	if fresh, err := c.store.SessionByID(ctx, session.ID); err == nil {
		status = fresh.Status
	}
	return SubmitResult{
		Answer:        domain.ViewAnswer(answer),
		Duplicate:     true,
		Score:         score,
		SessionStatus: status,
	}, nil
}

// settleProgress marks the player finished once every question is answered and
// completes the session when all competitors are done.
func (c *Coordinator) settleProgress(ctx context.Context, session domain.Session, playerID string) (domain.SessionStatus, error) {
	counts, err := c.store.AnswerCounts(ctx, session.ID)
	if err != nil {
		return "", err
	}
	if counts[playerID] >= session.QuestionCount {
		err := c.store.SetPlayerState(ctx, session.ID, playerID, domain.PlayerFinished)
		if err != nil && !errors.Is(err, domain.ErrPlayerNotFound) {
			return "", err
		}
	}
	return c.completeIfAllAnswered(ctx, session, counts)
}

func (c *Coordinator) completeIfAllAnswered(ctx context.Context, session domain.Session, counts map[string]int) (domain.SessionStatus, error) {
	players, err := c.store.ListPlayers(ctx, session.ID)
	if err != nil {
		return "", err
	}
	competitors := 0
	for _, p := range players {
		if p.IsSpectator(session) {
			continue
		}
		competitors++
		if counts[p.ID] < session.QuestionCount {
			return domain.StatusActive, nil
		}
	}
	if competitors == 0 {
		return domain.StatusActive, nil
	}

	won, err := c.store.MarkCompleted(ctx, session.ID, c.now(), domain.StatusActive)
	if err != nil {
		return "", fmt.Errorf("complete session: %w", err)
	}
	if won {
		metrics.SessionTransitions.WithLabelValues(string(domain.StatusCompleted), "all_answered").Inc()
		log.Printf("blitz session %s completed: all players answered", session.ID)
		c.notifier.BroadcastRefresh(session.ID)
	}
	return domain.StatusCompleted, nil
}

// KickPlayer removes a player's membership. Their answers stay on record.
func (c *Coordinator) KickPlayer(ctx context.Context, sessionID, targetPlayerID string, caller domain.User) error {
	session, err := c.store.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.HostUserID != caller.ID {
		return domain.ErrNotSessionHost
	}
	if session.Status == domain.StatusCompleted {
		return domain.ErrSessionCompleted
	}
	target, err := c.store.PlayerByID(ctx, session.ID, targetPlayerID)
	if err != nil {
		return err
	}
	if target.IsHost || target.UserID == caller.ID {
		return domain.ErrCannotKickSelf
	}
	if err := c.store.DeletePlayer(ctx, session.ID, target.ID); err != nil {
		return err
	}
	metrics.PlayersKicked.Inc()
	log.Printf("blitz session %s: host kicked player %s", session.ID, target.ID)
	c.notifier.BroadcastRefresh(session.ID)

	if session.Status == domain.StatusActive {
		counts, err := c.store.AnswerCounts(ctx, session.ID)
		if err != nil {
			return err
		}
		if _, err := c.completeIfAllAnswered(ctx, session, counts); err != nil {
			return err
		}
	}
	return nil
}

// Cancel closes a session that never started.
func (c *Coordinator) Cancel(ctx context.Context, sessionID string, caller domain.User) error {
	session, err := c.store.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.HostUserID != caller.ID {
		return domain.ErrNotSessionHost
	}
	won, err := c.store.MarkCompleted(ctx, session.ID, c.now(), domain.StatusPending)
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	if !won {
		return domain.ErrSessionNotPending
	}
	metrics.SessionTransitions.WithLabelValues(string(domain.StatusCompleted), "cancelled").Inc()
	log.Printf("blitz session %s cancelled by host", session.ID)
	c.notifier.BroadcastRefresh(session.ID)
	return nil
}

// GetState is the read path every client view is built from. It never mutates.
func (c *Coordinator) GetState(ctx context.Context, sessionID string, caller domain.User) (domain.State, error) {
	session, err := c.store.SessionByID(ctx, sessionID)
	if err != nil {
		return domain.State{}, err
	}
	me, err := c.store.PlayerByUser(ctx, session.ID, caller.ID)
	if errors.Is(err, domain.ErrPlayerNotFound) {
		return domain.State{}, domain.ErrNotParticipant
	}
	if err != nil {
		return domain.State{}, err
	}
	players, err := c.store.ListPlayers(ctx, session.ID)
	if err != nil {
		return domain.State{}, err
	}
	questions, err := c.store.ListQuestions(ctx, session.ID)
	if err != nil {
		return domain.State{}, err
	}
	answers, err := c.store.ListAnswers(ctx, session.ID)
	if err != nil {
		return domain.State{}, err
	}
	return Project(session, me, players, questions, answers, c.now()), nil
}

// Membership checks that the caller belongs to the session.
func (c *Coordinator) Membership(ctx context.Context, sessionID string, caller domain.User) (domain.Player, error) {
	if _, err := c.store.SessionByID(ctx, sessionID); err != nil {
		return domain.Player{}, err
	}
	p, err := c.store.PlayerByUser(ctx, sessionID, caller.ID)
	if errors.Is(err, domain.ErrPlayerNotFound) {
		return domain.Player{}, domain.ErrNotParticipant
	}
	return p, err
}

// History returns every answer in the session, including those of kicked players.
func (c *Coordinator) History(ctx context.Context, sessionID string, caller domain.User) ([]domain.AnswerView, error) {
	session, err := c.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.HostUserID != caller.ID {
		return nil, domain.ErrNotSessionHost
	}
	answers, err := c.store.ListAnswers(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].CreatedAt.Before(answers[j].CreatedAt)
	})
	out := make([]domain.AnswerView, len(answers))
	for i, a := range answers {
		out[i] = domain.ViewAnswer(a)
	}
	return out, nil
}

// ExpireDue completes every active session whose time limit has elapsed.
func (c *Coordinator) ExpireDue(ctx context.Context) (int, error) {
	now := c.now()
	ids, err := c.store.ExpiredSessions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}
	expired := 0
	for _, id := range ids {
		won, err := c.store.MarkCompleted(ctx, id, now, domain.StatusActive)
		if err != nil {
			return expired, fmt.Errorf("expire session %s: %w", id, err)
		}
		if !won {
			continue
		}
		expired++
		metrics.SessionTransitions.WithLabelValues(string(domain.StatusCompleted), "expired").Inc()
		c.notifier.BroadcastRefresh(id)
	}
	return expired, nil
}

// RunExpirySweep calls ExpireDue every interval until ctx is done.
func (c *Coordinator) RunExpirySweep(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.ExpireDue(ctx)
			if err != nil {
				log.Printf("expiry sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("expiry sweep completed %d sessions", n)
			}
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func displayName(candidates ...string) string {
	for _, c := range candidates {
		name := strings.TrimSpace(c)
		if name == "" {
			continue
		}
		if utf8.RuneCountInString(name) > maxDisplayNameLength {
			name = string([]rune(name)[:maxDisplayNameLength])
		}
		return name
	}
	return ""
}
