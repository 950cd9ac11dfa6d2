package domain

import "errors"

var (
	// ErrUnauthenticated is returned when the request carries no verified caller.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrNotHostEligible is returned when the caller's role may not host sessions.
	ErrNotHostEligible = errors.New("caller is not allowed to host a blitz session")
	// ErrNotSessionHost is returned for host-only actions taken by someone else.
	ErrNotSessionHost = errors.New("only the session host can do this")
	// ErrNotParticipant is returned when the caller is not a member of the session.
	ErrNotParticipant = errors.New("caller is not a participant in this session")
	// ErrNotPlayerOwner is returned when answering on behalf of another player.
	ErrNotPlayerOwner = errors.New("player belongs to another user")
	// ErrSpectatorCannotAnswer is returned when a teacher host tries to answer.
	ErrSpectatorCannotAnswer = errors.New("spectators cannot submit answers")
	// ErrCannotKickSelf is returned when the host targets their own player row.
	ErrCannotKickSelf = errors.New("host cannot kick themselves")
	// ErrPlayerKicked is returned when a kicked user tries to join again.
	ErrPlayerKicked = errors.New("player was removed from this session")

	// ErrSessionNotFound is returned when a session id or join code does not resolve.
	ErrSessionNotFound = errors.New("blitz session not found")
	// ErrPlayerNotFound is returned when a player is not part of the session.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrQuestionNotFound is returned when a question is not part of the session.
	ErrQuestionNotFound = errors.New("question not found in session")
	// ErrAnswerNotFound is returned when a player has not answered a question yet.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrDeckNotFound is returned when the deck collaborator does not know the deck.
	ErrDeckNotFound = errors.New("deck not found")

	// ErrSessionNotPending is returned for operations that need a pending session.
	ErrSessionNotPending = errors.New("session is not pending")
	// ErrSessionNotActive is returned for operations that need an active session.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrSessionCompleted is returned when a finished session is modified.
	ErrSessionCompleted = errors.New("session is already completed")

	// ErrDeckEmpty is returned when a deck has no eligible cards.
	ErrDeckEmpty = errors.New("deck has no cards to build questions from")
	// ErrNotEnoughPlayers is returned when start is attempted below the minimum.
	ErrNotEnoughPlayers = errors.New("not enough players to start")

	// ErrCodeTaken is returned by stores when a join code is already used.
	ErrCodeTaken = errors.New("join code already in use")
	// ErrCodeSpaceExhausted is returned when no free join code could be generated.
	ErrCodeSpaceExhausted = errors.New("could not generate a unique join code")
	// ErrSessionFull is returned when the session reached its player capacity.
	ErrSessionFull = errors.New("session is full")
	// ErrConflict is returned when a uniqueness race was lost in the store.
	ErrConflict = errors.New("conflicting concurrent update")

	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Kind is the machine-readable error category surfaced to clients.
type Kind string

const (
	KindUnauthenticated  Kind = "unauthenticated"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindInvalidState     Kind = "invalid_state"
	KindDeckEmpty        Kind = "deck_empty"
	KindNotEnoughPlayers Kind = "not_enough_players"
	KindConflict         Kind = "conflict"
	KindInvalidArgument  Kind = "invalid_argument"
	KindInternal         Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrNotHostEligible, KindForbidden},
	{ErrNotSessionHost, KindForbidden},
	{ErrNotParticipant, KindForbidden},
	{ErrNotPlayerOwner, KindForbidden},
	{ErrSpectatorCannotAnswer, KindForbidden},
	{ErrCannotKickSelf, KindForbidden},
	{ErrPlayerKicked, KindForbidden},
	{ErrSessionNotFound, KindNotFound},
	{ErrPlayerNotFound, KindNotFound},
	{ErrQuestionNotFound, KindNotFound},
	{ErrAnswerNotFound, KindNotFound},
	{ErrDeckNotFound, KindNotFound},
	{ErrSessionNotPending, KindInvalidState},
	{ErrSessionNotActive, KindInvalidState},
	{ErrSessionCompleted, KindInvalidState},
	{ErrDeckEmpty, KindDeckEmpty},
	{ErrNotEnoughPlayers, KindNotEnoughPlayers},
	{ErrCodeTaken, KindConflict},
	{ErrCodeSpaceExhausted, KindConflict},
	{ErrSessionFull, KindConflict},
	{ErrConflict, KindConflict},
	{ErrInvalidArgument, KindInvalidArgument},
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
