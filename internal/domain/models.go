package domain

import "time"

// SessionStatus is the lifecycle state of a blitz session.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
)

// GameMode controls how many players are needed to start.
type GameMode string

const (
	// ModeVersus needs at least two non-spectator players to start.
	ModeVersus GameMode = "versus"
	// ModePractice lets a lone host start for solo testing.
	ModePractice GameMode = "practice"
)

// PlayerState tracks a player's progress through the question set.
type PlayerState string

const (
	PlayerPlaying  PlayerState = "playing"
	PlayerFinished PlayerState = "finished"
)

// Default scoring weights applied when a session does not override them.
const (
	DefaultPointsCorrect   = 2
	DefaultPointsIncorrect = -1
)

// CodeLength is the fixed length of a join code.
const CodeLength = 6

// User is the verified caller identity handed over by the auth layer.
type User struct {
	ID   string
	Name string
	Role string
}

// Session is one hosted quiz instance.
type Session struct {
	ID              string
	Code            string
	DeckID          string
	HostUserID      string
	Mode            GameMode
	IsTeacher       bool
	QuestionCount   int
	TimeLimit       time.Duration // zero means unlimited
	PointsCorrect   int
	PointsIncorrect int
	Status          SessionStatus
	CreatedAt       time.Time
	StartedAt       *time.Time
	EndsAt          *time.Time // only set when started with a time limit
	CompletedAt     *time.Time
}

// Player is the membership of one user in one session.
type Player struct {
	ID          string
	SessionID   string
	UserID      string
	DisplayName string
	Score       int
	IsHost      bool
	State       PlayerState
	JoinedAt    time.Time
}

// IsSpectator reports whether the player only watches the session.
// Only the host of a teacher session spectates.
func (p Player) IsSpectator(s Session) bool {
	return p.IsHost && s.IsTeacher
}

// Question is an immutable snapshot of a card selected into a session.
type Question struct {
	ID              string
	SessionID       string
	CardID          string
	Position        int // 1-based
	PointsCorrect   int
	PointsIncorrect int
	NativeText      string
	ForeignText     string
	AudioURL        string
}

// Answer is one scored submission.
type Answer struct {
	ID            string
	SessionID     string
	PlayerID      string
	QuestionID    string
	IsCorrect     bool
	PointsAwarded int
	AnswerText    string
	CreatedAt     time.Time
}

// Card is a flashcard owned by the deck collaborator.
type Card struct {
	ID          string `json:"id"`
	DeckID      string `json:"deckId"`
	NativeText  string `json:"nativeText"`
	ForeignText string `json:"foreignText"`
	AudioURL    string `json:"audioUrl,omitempty"`
}

// Eligible reports whether the card can be turned into a question.
func (c Card) Eligible() bool {
	return c.NativeText != "" && c.ForeignText != ""
}

// Deck is a set of cards.
type Deck struct {
	ID    string `json:"id"`
	Cards []Card `json:"cards"`
}
