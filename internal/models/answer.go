package models

import (
	"time"

	"gorm.io/datatypes"
)

type AnswerKind string

const (
	AnswerChoice AnswerKind = "choice"
	AnswerText   AnswerKind = "text"
	AnswerRating AnswerKind = "rating"
	AnswerVideo  AnswerKind = "video"
)

// Answer is unique per (attempt_id, question_id); writes are upserts.
type Answer struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	AttemptID  uint       `json:"attempt_id" gorm:"not null;uniqueIndex:idx_answers_attempt_question"`
	QuestionID uint       `json:"question_id" gorm:"not null;uniqueIndex:idx_answers_attempt_question"`
	Kind       AnswerKind `json:"kind" gorm:"not null;size:20" validate:"required,answer_kind"`

	// Payload is the JSON encoding of the kind-specific answer body.
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	AutoSubmitted bool           `json:"auto_submitted" gorm:"default:false"`
	AnsweredAt    time.Time      `json:"answered_at" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Answer) TableName() string {
	return "answers"
}
