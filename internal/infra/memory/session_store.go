package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore.
// A single lock makes every method atomic, which gives the same uniqueness
// and conditional-update guarantees the SQL store gets from constraints.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*domain.Session
	codes     map[string]string
	players   map[string]map[string]*domain.Player
	questions map[string][]domain.Question
	answers   map[string][]domain.Answer
	kicked    map[string]map[string]bool
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]*domain.Session),
		codes:     make(map[string]string),
		players:   make(map[string]map[string]*domain.Player),
		questions: make(map[string][]domain.Question),
		answers:   make(map[string][]domain.Answer),
		kicked:    make(map[string]map[string]bool),
	}
}

func (s *SessionStore) CodeInUse(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *SessionStore) CreateSession(_ context.Context, session domain.Session, host domain.Player, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[session.Code]; ok {
		return domain.ErrCodeTaken
	}
	if _, ok := s.sessions[session.ID]; ok {
		return domain.ErrConflict
	}
	stored := session
	s.sessions[session.ID] = &stored
	s.codes[session.Code] = session.ID
	h := host
	s.players[session.ID] = map[string]*domain.Player{host.ID: &h}
	s.questions[session.ID] = append([]domain.Question(nil), questions...)
	return nil
}

func (s *SessionStore) SessionByID(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return *session, nil
}

func (s *SessionStore) SessionByCode(_ context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return *s.sessions[id], nil
}

func (s *SessionStore) AddPlayer(_ context.Context, player domain.Player, limit int) (domain.Player, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.players[player.SessionID]
	if !ok {
		return domain.Player{}, false, domain.ErrSessionNotFound
	}
	for _, p := range members {
		if p.UserID == player.UserID {
			return *p, false, nil
		}
	}
	if s.kicked[player.SessionID][player.UserID] {
		return domain.Player{}, false, domain.ErrPlayerKicked
	}
	if limit > 0 && len(members) >= limit {
		return domain.Player{}, false, domain.ErrSessionFull
	}
	stored := player
	members[player.ID] = &stored
	return stored, true, nil
}

func (s *SessionStore) PlayerByID(_ context.Context, sessionID, playerID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[sessionID][playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return *p, nil
}

func (s *SessionStore) PlayerByUser(_ context.Context, sessionID, userID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.players[sessionID] {
		if p.UserID == userID {
			return *p, nil
		}
	}
	return domain.Player{}, domain.ErrPlayerNotFound
}

func (s *SessionStore) ListPlayers(_ context.Context, sessionID string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.players[sessionID]
	out := make([]domain.Player, 0, len(members))
	for _, p := range members {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *SessionStore) DeletePlayer(_ context.Context, sessionID, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[sessionID][playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if s.kicked[sessionID] == nil {
		s.kicked[sessionID] = make(map[string]bool)
	}
	s.kicked[sessionID][p.UserID] = true
	delete(s.players[sessionID], playerID)
	return nil
}

func (s *SessionStore) SetPlayerState(_ context.Context, sessionID, playerID string, state domain.PlayerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[sessionID][playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.State = state
	return nil
}

func (s *SessionStore) ListQuestions(_ context.Context, sessionID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Question(nil), s.questions[sessionID]...), nil
}

func (s *SessionStore) QuestionByID(_ context.Context, sessionID, questionID string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.questions[sessionID] {
		if q.ID == questionID {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (s *SessionStore) MarkActive(_ context.Context, sessionID string, startedAt time.Time, endsAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusPending {
		return false, nil
	}
	session.Status = domain.StatusActive
	started := startedAt
	session.StartedAt = &started
	if endsAt != nil {
		ends := *endsAt
		session.EndsAt = &ends
	}
	return true, nil
}

func (s *SessionStore) MarkCompleted(_ context.Context, sessionID string, at time.Time, from ...domain.SessionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	for _, st := range from {
		if session.Status == st {
			session.Status = domain.StatusCompleted
			completed := at
			session.CompletedAt = &completed
			return true, nil
		}
	}
	return false, nil
}

func (s *SessionStore) ExpiredSessions(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, session := range s.sessions {
		if session.Status == domain.StatusActive && session.EndsAt != nil && !session.EndsAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SessionStore) RecordAnswer(_ context.Context, answer domain.Answer) (domain.Answer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.answers[answer.SessionID] {
		if a.PlayerID == answer.PlayerID && a.QuestionID == answer.QuestionID {
			return a, false, nil
		}
	}
	session, ok := s.sessions[answer.SessionID]
	if !ok {
		return domain.Answer{}, false, domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusActive {
		return domain.Answer{}, false, domain.ErrSessionNotActive
	}
	player, ok := s.players[answer.SessionID][answer.PlayerID]
	if !ok {
		return domain.Answer{}, false, domain.ErrPlayerNotFound
	}
	s.answers[answer.SessionID] = append(s.answers[answer.SessionID], answer)
	player.Score += answer.PointsAwarded
	return answer, true, nil
}

func (s *SessionStore) AnswerFor(_ context.Context, sessionID, playerID, questionID string) (domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.answers[sessionID] {
		if a.PlayerID == playerID && a.QuestionID == questionID {
			return a, nil
		}
	}
	return domain.Answer{}, domain.ErrAnswerNotFound
}

func (s *SessionStore) ListAnswers(_ context.Context, sessionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Answer(nil), s.answers[sessionID]...), nil
}

func (s *SessionStore) AnswerCounts(_ context.Context, sessionID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, a := range s.answers[sessionID] {
		counts[a.PlayerID]++
	}
	return counts, nil
}
