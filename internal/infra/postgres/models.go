package postgres

import (
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/uptrace/bun"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID               string     `bun:"id,pk"`
	Code             string     `bun:"code,notnull"`
	DeckID           string     `bun:"deck_id,notnull"`
	HostUserID       string     `bun:"host_user_id,notnull"`
	Mode             string     `bun:"mode,notnull"`
	IsTeacher        bool       `bun:"is_teacher,notnull"`
	QuestionCount    int        `bun:"question_count,notnull"`
	TimeLimitSeconds int        `bun:"time_limit_seconds,notnull"`
	PointsCorrect    int        `bun:"points_correct,notnull"`
	PointsIncorrect  int        `bun:"points_incorrect,notnull"`
	Status           string     `bun:"status,notnull"`
	CreatedAt        time.Time  `bun:"created_at,notnull"`
	StartedAt        *time.Time `bun:"started_at"`
	EndsAt           *time.Time `bun:"ends_at"`
	CompletedAt      *time.Time `bun:"completed_at"`
}

type playerRow struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID          string    `bun:"id,pk"`
	SessionID   string    `bun:"session_id,notnull"`
	UserID      string    `bun:"user_id,notnull"`
	DisplayName string    `bun:"display_name,notnull"`
	Score       int       `bun:"score,notnull"`
	IsHost      bool      `bun:"is_host,notnull"`
	State       string    `bun:"state,notnull"`
	JoinedAt    time.Time `bun:"joined_at,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID              string `bun:"id,pk"`
	SessionID       string `bun:"session_id,notnull"`
	CardID          string `bun:"card_id,notnull"`
	Position        int    `bun:"position,notnull"`
	PointsCorrect   int    `bun:"points_correct,notnull"`
	PointsIncorrect int    `bun:"points_incorrect,notnull"`
	NativeText      string `bun:"native_text,notnull"`
	ForeignText     string `bun:"foreign_text,notnull"`
	AudioURL        string `bun:"audio_url,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID            string    `bun:"id,pk"`
	SessionID     string    `bun:"session_id,notnull"`
	PlayerID      string    `bun:"player_id,notnull"`
	QuestionID    string    `bun:"question_id,notnull"`
	IsCorrect     bool      `bun:"is_correct,notnull"`
	PointsAwarded int       `bun:"points_awarded,notnull"`
	AnswerText    string    `bun:"answer_text,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

type kickedPlayerRow struct {
	bun.BaseModel `bun:"table:kicked_players,alias:k"`

	SessionID string    `bun:"session_id,pk"`
	UserID    string    `bun:"user_id,pk"`
	KickedAt  time.Time `bun:"kicked_at,notnull"`
}

func toSessionRow(s domain.Session) *sessionRow {
	return &sessionRow{
		ID:               s.ID,
		Code:             s.Code,
		DeckID:           s.DeckID,
		HostUserID:       s.HostUserID,
		Mode:             string(s.Mode),
		IsTeacher:        s.IsTeacher,
		QuestionCount:    s.QuestionCount,
		TimeLimitSeconds: int(s.TimeLimit / time.Second),
		PointsCorrect:    s.PointsCorrect,
		PointsIncorrect:  s.PointsIncorrect,
		Status:           string(s.Status),
		CreatedAt:        s.CreatedAt,
		StartedAt:        s.StartedAt,
		EndsAt:           s.EndsAt,
		CompletedAt:      s.CompletedAt,
	}
}

func (r *sessionRow) toDomain() domain.Session {
	return domain.Session{
		ID:              r.ID,
		Code:            r.Code,
		DeckID:          r.DeckID,
		HostUserID:      r.HostUserID,
		Mode:            domain.GameMode(r.Mode),
		IsTeacher:       r.IsTeacher,
		QuestionCount:   r.QuestionCount,
		TimeLimit:       time.Duration(r.TimeLimitSeconds) * time.Second,
		PointsCorrect:   r.PointsCorrect,
		PointsIncorrect: r.PointsIncorrect,
		Status:          domain.SessionStatus(r.Status),
		CreatedAt:       r.CreatedAt,
		StartedAt:       r.StartedAt,
		EndsAt:          r.EndsAt,
		CompletedAt:     r.CompletedAt,
	}
}

func toPlayerRow(p domain.Player) *playerRow {
	return &playerRow{
		ID:          p.ID,
		SessionID:   p.SessionID,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Score:       p.Score,
		IsHost:      p.IsHost,
		State:       string(p.State),
		JoinedAt:    p.JoinedAt,
	}
}

func (r *playerRow) toDomain() domain.Player {
	return domain.Player{
		ID:          r.ID,
		SessionID:   r.SessionID,
		UserID:      r.UserID,
		DisplayName: r.DisplayName,
		Score:       r.Score,
		IsHost:      r.IsHost,
		State:       domain.PlayerState(r.State),
		JoinedAt:    r.JoinedAt,
	}
}

func toQuestionRow(q domain.Question) questionRow {
	return questionRow{
		ID:              q.ID,
		SessionID:       q.SessionID,
		CardID:          q.CardID,
		Position:        q.Position,
		PointsCorrect:   q.PointsCorrect,
		PointsIncorrect: q.PointsIncorrect,
		NativeText:      q.NativeText,
		ForeignText:     q.ForeignText,
		AudioURL:        q.AudioURL,
	}
}

func (r *questionRow) toDomain() domain.Question {
	return domain.Question{
		ID:              r.ID,
		SessionID:       r.SessionID,
		CardID:          r.CardID,
		Position:        r.Position,
		PointsCorrect:   r.PointsCorrect,
		PointsIncorrect: r.PointsIncorrect,
		NativeText:      r.NativeText,
		ForeignText:     r.ForeignText,
		AudioURL:        r.AudioURL,
	}
}

func toAnswerRow(a domain.Answer) *answerRow {
	return &answerRow{
		ID:            a.ID,
		SessionID:     a.SessionID,
		PlayerID:      a.PlayerID,
		QuestionID:    a.QuestionID,
		IsCorrect:     a.IsCorrect,
		PointsAwarded: a.PointsAwarded,
		AnswerText:    a.AnswerText,
		CreatedAt:     a.CreatedAt,
	}
}

func (r *answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:            r.ID,
		SessionID:     r.SessionID,
		PlayerID:      r.PlayerID,
		QuestionID:    r.QuestionID,
		IsCorrect:     r.IsCorrect,
		PointsAwarded: r.PointsAwarded,
		AnswerText:    r.AnswerText,
		CreatedAt:     r.CreatedAt,
	}
}
