package app

import (
	"math"
	"sort"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
)

// Project builds the state a caller sees. It is a pure function of its inputs.
func Project(session domain.Session, me domain.Player, players []domain.Player, questions []domain.Question, answers []domain.Answer, now time.Time) domain.State {
	answered := make(map[string]int, len(players))
	mine := make([]domain.AnswerView, 0)
	for _, a := range answers {
		answered[a.PlayerID]++
		if a.PlayerID == me.ID {
			mine = append(mine, domain.ViewAnswer(a))
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].CreatedAt.Before(mine[j].CreatedAt)
	})

	teacherHost := me.IsSpectator(session)

	state := domain.State{
		Session:        domain.Summarize(session),
		Players:        rankPlayers(players, answered),
		Questions:      []domain.QuestionView{},
		TotalQuestions: len(questions),
		MyPlayerID:     me.ID,
		MyAnswers:      mine,
		IsTeacherHost:  teacherHost,
	}

	if !teacherHost {
		ordered := make([]domain.Question, len(questions))
		copy(ordered, questions)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })
		state.Questions = make([]domain.QuestionView, len(ordered))
		for i, q := range ordered {
			state.Questions[i] = domain.QuestionView{
				ID:              q.ID,
				CardID:          q.CardID,
				Position:        q.Position,
				Mode:            domain.ModeForPosition(q.Position),
				NativeText:      q.NativeText,
				ForeignText:     q.ForeignText,
				AudioURL:        q.AudioURL,
				PointsCorrect:   q.PointsCorrect,
				PointsIncorrect: q.PointsIncorrect,
			}
		}
	}

	if session.Status == domain.StatusActive && session.EndsAt != nil {
		remaining := int(math.Ceil(session.EndsAt.Sub(now).Seconds()))
		if remaining < 0 {
			remaining = 0
		}
		state.RemainingSeconds = &remaining
		state.Expired = remaining == 0
	}
	return state
}

// rankPlayers orders by score, then progress, then join time. Equal scores share a rank.
func rankPlayers(players []domain.Player, answered map[string]int) []domain.PlayerView {
	sorted := make([]domain.Player, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if answered[a.ID] != answered[b.ID] {
			return answered[a.ID] > answered[b.ID]
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})

	views := make([]domain.PlayerView, len(sorted))
	for i, p := range sorted {
		rank := i + 1
		if i > 0 && p.Score == sorted[i-1].Score {
			rank = views[i-1].Rank
		}
		views[i] = domain.PlayerView{
			ID:            p.ID,
			UserID:        p.UserID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
			IsHost:        p.IsHost,
			State:         p.State,
			AnsweredCount: answered[p.ID],
			Rank:          rank,
		}
	}
	return views
}
