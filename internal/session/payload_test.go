package session

import (
	"strings"
	"testing"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_EncodeDecode(t *testing.T) {
	payloads := []Payload{
		ChoiceAnswer{OptionID: 4},
		TextAnswer{Text: "hello"},
		RatingAnswer{Value: 3},
		VideoAnswer{StorageKey: "recordings/u/1/2/3.webm", URL: "https://cdn/x", DurationSeconds: 12.5, SizeBytes: 2048},
	}
	for _, p := range payloads {
		kind, raw, err := EncodePayload(p)
		require.NoError(t, err)
		assert.Equal(t, p.Kind(), kind)

		back, err := DecodePayload(kind, raw)
		require.NoError(t, err)
		assert.Equal(t, p, back)
	}
}

func TestPayload_DecodeErrors(t *testing.T) {
	_, err := DecodePayload("essay", []byte(`{}`))
	assert.Error(t, err)

	_, err = DecodePayload(models.AnswerRating, []byte(`{"value":"high"}`))
	assert.Error(t, err)

	_, _, err = EncodePayload(nil)
	assert.ErrorIs(t, err, ErrPayloadMismatch)
}

func TestCheckPayload(t *testing.T) {
	choice := &models.Question{ID: 1, Type: models.QuestionChoice, Options: []models.QuestionOption{{ID: 5}}}
	rating := &models.Question{ID: 2, Type: models.QuestionRating, RatingMin: 1, RatingMax: 5}
	scenario := &models.Question{ID: 3, Type: models.QuestionScenario}
	video := &models.Question{ID: 4, Type: models.QuestionVideo}

	tests := []struct {
		name    string
		q       *models.Question
		p       Payload
		wantErr bool
	}{
		{"choice ok", choice, ChoiceAnswer{OptionID: 5}, false},
		{"choice foreign option", choice, ChoiceAnswer{OptionID: 6}, true},
		{"choice wrong kind", choice, RatingAnswer{Value: 1}, true},
		{"rating in range", rating, RatingAnswer{Value: 5}, false},
		{"rating too high", rating, RatingAnswer{Value: 6}, true},
		{"scenario text", scenario, TextAnswer{Text: "plan"}, false},
		{"scenario video", scenario, VideoAnswer{StorageKey: "recordings/a"}, false},
		{"scenario choice", scenario, ChoiceAnswer{OptionID: 1}, true},
		{"video without key", video, VideoAnswer{}, true},
		{"text too long", &models.Question{Type: models.QuestionText}, TextAnswer{Text: strings.Repeat("a", maxTextAnswerLength+1)}, true},
		{"nil", choice, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPayload(tt.q, tt.p)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPayloadMismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSatisfies(t *testing.T) {
	choice := &models.Question{Type: models.QuestionChoice, Options: []models.QuestionOption{{ID: 5}}}
	rating := &models.Question{Type: models.QuestionRating, RatingMin: 1, RatingMax: 5}
	text := &models.Question{Type: models.QuestionText}
	video := &models.Question{Type: models.QuestionVideo}

	assert.True(t, Satisfies(choice, ChoiceAnswer{OptionID: 5}))
	assert.False(t, Satisfies(choice, ChoiceAnswer{}))
	assert.True(t, Satisfies(text, TextAnswer{Text: " x "}))
	assert.False(t, Satisfies(text, TextAnswer{Text: "\n\t "}))
	assert.True(t, Satisfies(rating, RatingAnswer{Value: 1}))
	assert.False(t, Satisfies(rating, RatingAnswer{Value: 0}))
	assert.True(t, Satisfies(video, VideoAnswer{StorageKey: "recordings/k"}))
	assert.False(t, Satisfies(video, VideoAnswer{URL: "https://only-url"}))
	assert.False(t, Satisfies(video, nil))
}
