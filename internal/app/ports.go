package app

import (
	"context"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
)

// SessionStore is the durable record of sessions, players, questions and answers.
// Implementations must enforce uniqueness of the join code, of (session, user)
// players and of (session, player, question) answers, and must make status
// transitions conditional so that a lost race reports false instead of
// applying twice.
type SessionStore interface {
	CodeInUse(ctx context.Context, code string) (bool, error)
	// CreateSession writes the session, its host player and its questions atomically.
	// Returns domain.ErrCodeTaken if the code collides.
	CreateSession(ctx context.Context, session domain.Session, host domain.Player, questions []domain.Question) error
	SessionByID(ctx context.Context, sessionID string) (domain.Session, error)
	SessionByCode(ctx context.Context, code string) (domain.Session, error)

	// AddPlayer inserts the player unless the user already has a row in the
	// session, in which case the existing row is returned with created=false.
	// limit caps the number of players (0 means unlimited). Users removed by
	// DeletePlayer get domain.ErrPlayerKicked.
	AddPlayer(ctx context.Context, player domain.Player, limit int) (existing domain.Player, created bool, err error)
	PlayerByID(ctx context.Context, sessionID, playerID string) (domain.Player, error)
	PlayerByUser(ctx context.Context, sessionID, userID string) (domain.Player, error)
	ListPlayers(ctx context.Context, sessionID string) ([]domain.Player, error)
	// DeletePlayer removes the row and remembers the user as kicked.
	DeletePlayer(ctx context.Context, sessionID, playerID string) error
	SetPlayerState(ctx context.Context, sessionID, playerID string, state domain.PlayerState) error

	ListQuestions(ctx context.Context, sessionID string) ([]domain.Question, error)
	QuestionByID(ctx context.Context, sessionID, questionID string) (domain.Question, error)

	// MarkActive flips pending to active. Returns false if the session was not pending.
	MarkActive(ctx context.Context, sessionID string, startedAt time.Time, endsAt *time.Time) (bool, error)
	// MarkCompleted flips the session to completed if its status is one of from.
	MarkCompleted(ctx context.Context, sessionID string, at time.Time, from ...domain.SessionStatus) (bool, error)
	// ExpiredSessions lists active sessions whose ends_at is not after now.
	ExpiredSessions(ctx context.Context, now time.Time) ([]string, error)

	// RecordAnswer inserts the answer and adds its points to the player score in
	// one transaction. If an answer for (player, question) exists it is returned
	// with created=false and nothing is scored. A new answer is only accepted
	// while the session is active (domain.ErrSessionNotActive otherwise).
	// Returns domain.ErrPlayerNotFound if the player row no longer exists.
	RecordAnswer(ctx context.Context, answer domain.Answer) (stored domain.Answer, created bool, err error)
	AnswerFor(ctx context.Context, sessionID, playerID, questionID string) (domain.Answer, error)
	ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error)
	// AnswerCounts returns the number of answers per player id.
	AnswerCounts(ctx context.Context, sessionID string) (map[string]int, error)
}

// DeckRepository loads deck content from the deck collaborator (or a cache in front of it).
type DeckRepository interface {
	GetDeck(ctx context.Context, deckID string) (domain.Deck, error)
}

// Notifier receives content-free refresh signals after durable writes.
// Implementations must never block the caller for long nor return errors.
type Notifier interface {
	BroadcastRefresh(sessionID string)
}

// Authorizer decides whether a caller may host a session.
type Authorizer interface {
	CanHost(ctx context.Context, user domain.User, teacherMode bool) bool
}

// RoleAuthorizer grants hosting based on the caller's role.
type RoleAuthorizer struct {
	hostRoles    map[string]struct{}
	teacherRoles map[string]struct{}
}

// NewRoleAuthorizer builds a role-based authorizer. Teacher mode needs a teacher role.
func NewRoleAuthorizer(hostRoles, teacherRoles []string) *RoleAuthorizer {
	a := &RoleAuthorizer{
		hostRoles:    make(map[string]struct{}, len(hostRoles)),
		teacherRoles: make(map[string]struct{}, len(teacherRoles)),
	}
	for _, r := range hostRoles {
		a.hostRoles[r] = struct{}{}
	}
	for _, r := range teacherRoles {
		a.teacherRoles[r] = struct{}{}
	}
	return a
}

func (a *RoleAuthorizer) CanHost(_ context.Context, user domain.User, teacherMode bool) bool {
	if teacherMode {
		_, ok := a.teacherRoles[user.Role]
		return ok
	}
	_, ok := a.hostRoles[user.Role]
	return ok
}

type nopNotifier struct{}

func (nopNotifier) BroadcastRefresh(string) {}
