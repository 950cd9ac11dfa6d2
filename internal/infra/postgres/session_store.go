package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// SessionStore keeps blitz sessions in PostgreSQL. Uniqueness is enforced by
// table constraints and every status change is a conditional update, so
// concurrent instances can share one database.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	exists, err := s.db.NewSelect().Model((*sessionRow)(nil)).Where("code = ?", code).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}

func (s *SessionStore) CreateSession(ctx context.Context, session domain.Session, host domain.Player, questions []domain.Question) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(toSessionRow(session)).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrCodeTaken
			}
			return fmt.Errorf("insert session: %w", err)
		}
		if _, err := tx.NewInsert().Model(toPlayerRow(host)).Exec(ctx); err != nil {
			return fmt.Errorf("insert host: %w", err)
		}
		if len(questions) == 0 {
			return nil
		}
		rows := make([]questionRow, len(questions))
		for i, q := range questions {
			rows[i] = toQuestionRow(q)
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
}

func (s *SessionStore) SessionByID(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.sessionWhere(ctx, s.db, "id = ?", sessionID)
}

func (s *SessionStore) SessionByCode(ctx context.Context, code string) (domain.Session, error) {
	return s.sessionWhere(ctx, s.db, "code = ?", code)
}

func (s *SessionStore) sessionWhere(ctx context.Context, db bun.IDB, where string, arg interface{}) (domain.Session, error) {
	row := new(sessionRow)
	err := db.NewSelect().Model(row).Where(where, arg).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	return row.toDomain(), nil
}

// AddPlayer locks the session row so that the capacity check and the insert
// see a stable player count.
func (s *SessionStore) AddPlayer(ctx context.Context, player domain.Player, limit int) (domain.Player, bool, error) {
	var (
		out     domain.Player
		created bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		locked := new(sessionRow)
		err := tx.NewSelect().Model(locked).Column("id").Where("id = ?", player.SessionID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}

		existing, err := s.playerWhere(ctx, tx, player.SessionID, "user_id = ?", player.UserID)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, domain.ErrPlayerNotFound) {
			return err
		}

		kicked, err := tx.NewSelect().Model((*kickedPlayerRow)(nil)).
			Where("session_id = ?", player.SessionID).
			Where("user_id = ?", player.UserID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check kicked: %w", err)
		}
		if kicked {
			return domain.ErrPlayerKicked
		}

		if limit > 0 {
			n, err := tx.NewSelect().Model((*playerRow)(nil)).Where("session_id = ?", player.SessionID).Count(ctx)
			if err != nil {
				return fmt.Errorf("count players: %w", err)
			}
			if n >= limit {
				return domain.ErrSessionFull
			}
		}

		res, err := tx.NewInsert().Model(toPlayerRow(player)).On("CONFLICT (session_id, user_id) DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
		if affected(res) == 0 {
			out, err = s.playerWhere(ctx, tx, player.SessionID, "user_id = ?", player.UserID)
			return err
		}
		out, created = player, true
		return nil
	})
	if err != nil {
		return domain.Player{}, false, err
	}
	return out, created, nil
}

func (s *SessionStore) PlayerByID(ctx context.Context, sessionID, playerID string) (domain.Player, error) {
	return s.playerWhere(ctx, s.db, sessionID, "id = ?", playerID)
}

func (s *SessionStore) PlayerByUser(ctx context.Context, sessionID, userID string) (domain.Player, error) {
	return s.playerWhere(ctx, s.db, sessionID, "user_id = ?", userID)
}

func (s *SessionStore) playerWhere(ctx context.Context, db bun.IDB, sessionID, where string, arg interface{}) (domain.Player, error) {
	row := new(playerRow)
	err := db.NewSelect().Model(row).Where("session_id = ?", sessionID).Where(where, arg).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("load player: %w", err)
	}
	return row.toDomain(), nil
}

func (s *SessionStore) ListPlayers(ctx context.Context, sessionID string) ([]domain.Player, error) {
	var rows []playerRow
	err := s.db.NewSelect().Model(&rows).Where("session_id = ?", sessionID).Order("joined_at ASC", "id ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	players := make([]domain.Player, len(rows))
	for i := range rows {
		players[i] = rows[i].toDomain()
	}
	return players, nil
}

// DeletePlayer removes the player and records the user in kicked_players in
// the same transaction.
func (s *SessionStore) DeletePlayer(ctx context.Context, sessionID, playerID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(playerRow)
		err := tx.NewDelete().Model(row).
			Where("session_id = ?", sessionID).
			Where("id = ?", playerID).
			Returning("user_id").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPlayerNotFound
		}
		if err != nil {
			return fmt.Errorf("delete player: %w", err)
		}

		_, err = tx.NewInsert().Model(&kickedPlayerRow{
			SessionID: sessionID,
			UserID:    row.UserID,
			KickedAt:  time.Now().UTC(),
		}).On("CONFLICT (session_id, user_id) DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("record kicked player: %w", err)
		}
		return nil
	})
}

func (s *SessionStore) SetPlayerState(ctx context.Context, sessionID, playerID string, state domain.PlayerState) error {
	res, err := s.db.NewUpdate().Model((*playerRow)(nil)).
		Set("state = ?", string(state)).
		Where("session_id = ?", sessionID).
		Where("id = ?", playerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update player state: %w", err)
	}
	if affected(res) == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (s *SessionStore) ListQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	var rows []questionRow
	err := s.db.NewSelect().Model(&rows).Where("session_id = ?", sessionID).Order("position ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	questions := make([]domain.Question, len(rows))
	for i := range rows {
		questions[i] = rows[i].toDomain()
	}
	return questions, nil
}

func (s *SessionStore) QuestionByID(ctx context.Context, sessionID, questionID string) (domain.Question, error) {
	row := new(questionRow)
	err := s.db.NewSelect().Model(row).Where("session_id = ?", sessionID).Where("id = ?", questionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	return row.toDomain(), nil
}

func (s *SessionStore) MarkActive(ctx context.Context, sessionID string, startedAt time.Time, endsAt *time.Time) (bool, error) {
	res, err := s.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("status = ?", string(domain.StatusActive)).
		Set("started_at = ?", startedAt).
		Set("ends_at = ?", endsAt).
		Where("id = ?", sessionID).
		Where("status = ?", string(domain.StatusPending)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark active: %w", err)
	}
	if affected(res) == 1 {
		return true, nil
	}
	return false, s.mustExist(ctx, sessionID)
}

func (s *SessionStore) MarkCompleted(ctx context.Context, sessionID string, at time.Time, from ...domain.SessionStatus) (bool, error) {
	if len(from) == 0 {
		return false, s.mustExist(ctx, sessionID)
	}
	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}
	res, err := s.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("status = ?", string(domain.StatusCompleted)).
		Set("completed_at = ?", at).
		Where("id = ?", sessionID).
		Where("status IN (?)", bun.In(statuses)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	if affected(res) == 1 {
		return true, nil
	}
	return false, s.mustExist(ctx, sessionID)
}

func (s *SessionStore) mustExist(ctx context.Context, sessionID string) error {
	exists, err := s.db.NewSelect().Model((*sessionRow)(nil)).Where("id = ?", sessionID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) ExpiredSessions(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().Model((*sessionRow)(nil)).
		Column("id").
		Where("status = ?", string(domain.StatusActive)).
		Where("ends_at IS NOT NULL").
		Where("ends_at <= ?", now).
		Order("ends_at ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	return ids, nil
}

// RecordAnswer holds a share lock on the session row so a concurrent
// completion cannot slip between the status check and the insert.
func (s *SessionStore) RecordAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, bool, error) {
	var (
		out     domain.Answer
		created bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := s.answerFor(ctx, tx, answer.SessionID, answer.PlayerID, answer.QuestionID)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, domain.ErrAnswerNotFound) {
			return err
		}

		var status string
		err = tx.NewSelect().Model((*sessionRow)(nil)).
			Column("status").
			Where("id = ?", answer.SessionID).
			For("SHARE").
			Scan(ctx, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if domain.SessionStatus(status) != domain.StatusActive {
			return domain.ErrSessionNotActive
		}

		res, err := tx.NewInsert().Model(toAnswerRow(answer)).
			On("CONFLICT (session_id, player_id, question_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		if affected(res) == 0 {
			out, err = s.answerFor(ctx, tx, answer.SessionID, answer.PlayerID, answer.QuestionID)
			return err
		}

		res, err = tx.NewUpdate().Model((*playerRow)(nil)).
			Set("score = score + ?", answer.PointsAwarded).
			Where("session_id = ?", answer.SessionID).
			Where("id = ?", answer.PlayerID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update score: %w", err)
		}
		if affected(res) == 0 {
			// kicked between the membership check and the insert
			return domain.ErrPlayerNotFound
		}
		out, created = answer, true
		return nil
	})
	if err != nil {
		return domain.Answer{}, false, err
	}
	return out, created, nil
}

func (s *SessionStore) AnswerFor(ctx context.Context, sessionID, playerID, questionID string) (domain.Answer, error) {
	return s.answerFor(ctx, s.db, sessionID, playerID, questionID)
}

func (s *SessionStore) answerFor(ctx context.Context, db bun.IDB, sessionID, playerID, questionID string) (domain.Answer, error) {
	row := new(answerRow)
	err := db.NewSelect().Model(row).
		Where("session_id = ?", sessionID).
		Where("player_id = ?", playerID).
		Where("question_id = ?", questionID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	if err != nil {
		return domain.Answer{}, fmt.Errorf("load answer: %w", err)
	}
	return row.toDomain(), nil
}

func (s *SessionStore) ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).Where("session_id = ?", sessionID).Order("created_at ASC", "id ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	answers := make([]domain.Answer, len(rows))
	for i := range rows {
		answers[i] = rows[i].toDomain()
	}
	return answers, nil
}

func (s *SessionStore) AnswerCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	var rows []struct {
		PlayerID string `bun:"player_id"`
		N        int    `bun:"n"`
	}
	err := s.db.NewSelect().Model((*answerRow)(nil)).
		Column("player_id").
		ColumnExpr("count(*) AS n").
		Where("session_id = ?", sessionID).
		Group("player_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("count answers: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.PlayerID] = r.N
	}
	return counts, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
