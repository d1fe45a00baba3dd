package session

import (
	"testing"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choiceQuestion(id uint, points int, correct uint, options ...uint) *models.Question {
	q := &models.Question{ID: id, Type: models.QuestionChoice, Points: points}
	for _, opt := range options {
		q.Options = append(q.Options, models.QuestionOption{ID: opt, QuestionID: id, IsCorrect: opt == correct})
	}
	return q
}

func TestScore_ChoiceOnly(t *testing.T) {
	questions := []*models.Question{
		choiceQuestion(1, 1, 11, 11, 12),
		choiceQuestion(2, 2, 21, 21, 22),
		choiceQuestion(3, 1, 31, 31, 32),
	}
	answers := map[uint]Payload{
		1: ChoiceAnswer{OptionID: 11},
		2: ChoiceAnswer{OptionID: 22},
	}

	out := Score(questions, answers)
	require.NotNil(t, out.Score)
	assert.Equal(t, 25.0, *out.Score)
	assert.False(t, out.NeedsReview)
}

func TestScore_OpenAnswersNeedReview(t *testing.T) {
	questions := []*models.Question{
		choiceQuestion(1, 3, 11, 11, 12),
		{ID: 2, Type: models.QuestionText},
		{ID: 3, Type: models.QuestionRating, RatingMin: 1, RatingMax: 5},
	}

	out := Score(questions, map[uint]Payload{
		1: ChoiceAnswer{OptionID: 11},
		2: TextAnswer{Text: "because"},
	})
	require.NotNil(t, out.Score)
	assert.Equal(t, 100.0, *out.Score)
	assert.True(t, out.NeedsReview)
}

func TestScore_NothingGradable(t *testing.T) {
	out := Score([]*models.Question{{ID: 1, Type: models.QuestionVideo}}, nil)
	assert.Nil(t, out.Score)
	assert.False(t, out.NeedsReview)
}

func TestScore_Rounding(t *testing.T) {
	questions := []*models.Question{
		choiceQuestion(1, 1, 11, 11),
		choiceQuestion(2, 1, 21, 21),
		choiceQuestion(3, 1, 31, 31),
	}
	out := Score(questions, map[uint]Payload{1: ChoiceAnswer{OptionID: 11}})
	require.NotNil(t, out.Score)
	assert.Equal(t, 33.33, *out.Score)
}
