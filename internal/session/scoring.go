package session

import (
	"math"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
)

// Score auto-grades choice questions as a percentage of their points.
// Any other answered question needs a human reviewer. Score is nil when
// nothing is auto-gradable.
func Score(questions []*models.Question, answers map[uint]Payload) Outcome {
	var (
		total, earned int
		out           Outcome
	)

	for _, q := range questions {
		p, answered := answers[q.ID]

		if q.Type != models.QuestionChoice {
			if answered && Satisfies(q, p) {
				out.NeedsReview = true
			}
			continue
		}

		if q.Points <= 0 {
			continue
		}
		total += q.Points
		choice, ok := p.(ChoiceAnswer)
		if !ok {
			continue
		}
		for _, opt := range q.Options {
			if opt.ID == choice.OptionID && opt.IsCorrect {
				earned += q.Points
				break
			}
		}
	}

	if total > 0 {
		pct := math.Round(float64(earned)*10000/float64(total)) / 100
		out.Score = &pct
	}
	return out
}
