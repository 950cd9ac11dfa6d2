package domain

import "time"

// EventSessionRefresh tells clients to re-fetch the session state.
const EventSessionRefresh = "session:refresh"

// RefreshEvent is the only payload pushed over the realtime channel.
// It never carries session content.
type RefreshEvent struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId"`
}

// NewRefreshEvent builds the refresh signal for a session.
func NewRefreshEvent(sessionID string) RefreshEvent {
	return RefreshEvent{Event: EventSessionRefresh, SessionID: sessionID}
}

// SessionSummary is the client-facing view of a session.
type SessionSummary struct {
	ID               string        `json:"id"`
	Code             string        `json:"code"`
	DeckID           string        `json:"deckId"`
	Mode             GameMode      `json:"mode"`
	IsTeacher        bool          `json:"isTeacher"`
	Status           SessionStatus `json:"status"`
	QuestionCount    int           `json:"questionCount"`
	TimeLimitSeconds int           `json:"timeLimitSeconds"`
	PointsCorrect    int           `json:"pointsCorrect"`
	PointsIncorrect  int           `json:"pointsIncorrect"`
	CreatedAt        time.Time     `json:"createdAt"`
	StartedAt        *time.Time    `json:"startedAt,omitempty"`
	EndsAt           *time.Time    `json:"endsAt,omitempty"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
}

// Summarize projects a session into its summary.
func Summarize(s Session) SessionSummary {
	return SessionSummary{
		ID:               s.ID,
		Code:             s.Code,
		DeckID:           s.DeckID,
		Mode:             s.Mode,
		IsTeacher:        s.IsTeacher,
		Status:           s.Status,
		QuestionCount:    s.QuestionCount,
		TimeLimitSeconds: int(s.TimeLimit / time.Second),
		PointsCorrect:    s.PointsCorrect,
		PointsIncorrect:  s.PointsIncorrect,
		CreatedAt:        s.CreatedAt,
		StartedAt:        s.StartedAt,
		EndsAt:           s.EndsAt,
		CompletedAt:      s.CompletedAt,
	}
}

// PlayerView is a ranked player entry.
type PlayerView struct {
	ID            string      `json:"id"`
	UserID        string      `json:"userId"`
	DisplayName   string      `json:"displayName"`
	Score         int         `json:"score"`
	IsHost        bool        `json:"isHost"`
	State         PlayerState `json:"state"`
	AnsweredCount int         `json:"answeredCount"`
	Rank          int         `json:"rank"`
}

// QuestionView carries what a client needs to render any presentation mode.
type QuestionView struct {
	ID              string           `json:"id"`
	CardID          string           `json:"cardId"`
	Position        int              `json:"position"`
	Mode            PresentationMode `json:"mode"`
	NativeText      string           `json:"nativeText"`
	ForeignText     string           `json:"foreignText"`
	AudioURL        string           `json:"audioUrl,omitempty"`
	PointsCorrect   int              `json:"pointsCorrect"`
	PointsIncorrect int              `json:"pointsIncorrect"`
}

// AnswerView is an answer as shown to its author or the host.
type AnswerView struct {
	ID            string    `json:"id"`
	PlayerID      string    `json:"playerId"`
	QuestionID    string    `json:"questionId"`
	IsCorrect     bool      `json:"isCorrect"`
	PointsAwarded int       `json:"pointsAwarded"`
	AnswerText    string    `json:"answerText,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ViewAnswer projects an answer.
func ViewAnswer(a Answer) AnswerView {
	return AnswerView{
		ID:            a.ID,
		PlayerID:      a.PlayerID,
		QuestionID:    a.QuestionID,
		IsCorrect:     a.IsCorrect,
		PointsAwarded: a.PointsAwarded,
		AnswerText:    a.AnswerText,
		CreatedAt:     a.CreatedAt,
	}
}

// State is the single read contract every client view is built from.
type State struct {
	Session          SessionSummary `json:"session"`
	Players          []PlayerView   `json:"players"`
	Questions        []QuestionView `json:"questions"`
	TotalQuestions   int            `json:"totalQuestions"`
	MyPlayerID       string         `json:"myPlayerId"`
	MyAnswers        []AnswerView   `json:"myAnswers"`
	IsTeacherHost    bool           `json:"isTeacherHost"`
	RemainingSeconds *int           `json:"remainingSeconds,omitempty"`
	Expired          bool           `json:"expired"`
}
