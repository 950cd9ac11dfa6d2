package app

import "github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"

// Weights are the per-session points for a correct and an incorrect answer.
type Weights struct {
	Correct   int
	Incorrect int
}

// DefaultWeights is +2 for a correct answer and -1 for a miss.
var DefaultWeights = Weights{Correct: domain.DefaultPointsCorrect, Incorrect: domain.DefaultPointsIncorrect}

// Score returns the point delta for an answer to q.
func Score(q domain.Question, isCorrect bool) int {
	if isCorrect {
		return q.PointsCorrect
	}
	return q.PointsIncorrect
}
