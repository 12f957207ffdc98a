package main

import (
	"github.com/google/uuid"
)

const (
	minPoints = 1
	maxPoints = 100
)

// Question is a single trivia prompt. Questions are mutable while staged
// in a playlist and frozen once a game starts.
type Question struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Answer string `json:"answer"`
	Points int    `json:"points"`
}

func clampPoints(points int) int {
	switch {
	case points < minPoints:
		return minPoints
	case points > maxPoints:
		return maxPoints
	default:
		return points
	}
}

// normalizeQuestion assigns an id when absent and clamps points into
// [minPoints, maxPoints].
func normalizeQuestion(q Question) Question {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.Points = clampPoints(q.Points)

	return q
}

func normalizeQuestions(qs []Question) []Question {
	out := make([]Question, 0, len(qs))
	for _, q := range qs {
		out = append(out, normalizeQuestion(q))
	}
	return out
}
