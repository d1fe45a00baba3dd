package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"gorm.io/datatypes"
)

const maxTextAnswerLength = 20000

// Payload is the answer body. The set of implementations is closed.
type Payload interface {
	Kind() models.AnswerKind
	isPayload()
}

type ChoiceAnswer struct {
	OptionID uint `json:"option_id"`
}

type TextAnswer struct {
	Text string `json:"text"`
}

type RatingAnswer struct {
	Value int `json:"value"`
}

type VideoAnswer struct {
	StorageKey      string  `json:"storage_key"`
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
}

func (ChoiceAnswer) Kind() models.AnswerKind { return models.AnswerChoice }
func (TextAnswer) Kind() models.AnswerKind   { return models.AnswerText }
func (RatingAnswer) Kind() models.AnswerKind { return models.AnswerRating }
func (VideoAnswer) Kind() models.AnswerKind  { return models.AnswerVideo }

func (ChoiceAnswer) isPayload() {}
func (TextAnswer) isPayload()   {}
func (RatingAnswer) isPayload() {}
func (VideoAnswer) isPayload()  {}

// EncodePayload returns the kind tag and JSON body stored on models.Answer.
func EncodePayload(p Payload) (models.AnswerKind, datatypes.JSON, error) {
	if p == nil {
		return "", nil, fmt.Errorf("encode payload: %w", ErrPayloadMismatch)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s payload: %w", p.Kind(), err)
	}
	return p.Kind(), datatypes.JSON(raw), nil
}

func DecodePayload(kind models.AnswerKind, raw []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch kind {
	case models.AnswerChoice:
		var v ChoiceAnswer
		err = json.Unmarshal(raw, &v)
		p = v
	case models.AnswerText:
		var v TextAnswer
		err = json.Unmarshal(raw, &v)
		p = v
	case models.AnswerRating:
		var v RatingAnswer
		err = json.Unmarshal(raw, &v)
		p = v
	case models.AnswerVideo:
		var v VideoAnswer
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown answer kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return p, nil
}

// acceptedKinds lists which payloads each question type takes.
var acceptedKinds = map[models.QuestionType][]models.AnswerKind{
	models.QuestionChoice:   {models.AnswerChoice},
	models.QuestionText:     {models.AnswerText},
	models.QuestionRating:   {models.AnswerRating},
	models.QuestionVideo:    {models.AnswerVideo},
	models.QuestionScenario: {models.AnswerText, models.AnswerVideo},
}

// CheckPayload verifies p is a well-formed answer for q.
func CheckPayload(q *models.Question, p Payload) error {
	if p == nil {
		return fmt.Errorf("%w: empty answer", ErrPayloadMismatch)
	}

	accepted := false
	for _, kind := range acceptedKinds[q.Type] {
		if kind == p.Kind() {
			accepted = true
			break
		}
	}
	if !accepted {
		return fmt.Errorf("%w: %s question does not take %s answers", ErrPayloadMismatch, q.Type, p.Kind())
	}

	switch v := p.(type) {
	case ChoiceAnswer:
		if !q.HasOption(v.OptionID) {
			return fmt.Errorf("%w: option %d does not belong to question %d", ErrPayloadMismatch, v.OptionID, q.ID)
		}
	case TextAnswer:
		if len(v.Text) > maxTextAnswerLength {
			return fmt.Errorf("%w: text longer than %d bytes", ErrPayloadMismatch, maxTextAnswerLength)
		}
	case RatingAnswer:
		if v.Value < q.RatingMin || v.Value > q.RatingMax {
			return fmt.Errorf("%w: rating %d outside %d..%d", ErrPayloadMismatch, v.Value, q.RatingMin, q.RatingMax)
		}
	case VideoAnswer:
		if v.StorageKey == "" {
			return fmt.Errorf("%w: recording has no storage key", ErrPayloadMismatch)
		}
	}
	return nil
}

// Satisfies reports whether p counts as an answer for the required-answer gate.
func Satisfies(q *models.Question, p Payload) bool {
	if p == nil {
		return false
	}
	switch v := p.(type) {
	case ChoiceAnswer:
		return v.OptionID != 0 && q.HasOption(v.OptionID)
	case TextAnswer:
		return strings.TrimSpace(v.Text) != ""
	case RatingAnswer:
		return v.Value >= q.RatingMin && v.Value <= q.RatingMax
	case VideoAnswer:
		return v.StorageKey != ""
	}
	return false
}
