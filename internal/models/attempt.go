package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Attempt is one candidate's run through an assessment.
type Attempt struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	UserID       string     `json:"user_id" gorm:"not null;index;size:255"`
	AssessmentID uint       `json:"assessment_id" gorm:"not null;index"`
	StartedAt    time.Time  `json:"started_at" gorm:"not null"`
	CompletedAt  *time.Time `json:"completed_at" gorm:"index"`

	// CurrentQuestionIndex is the resume marker written on save-and-exit.
	CurrentQuestionIndex *int `json:"current_question_index"`

	Score       *float64 `json:"score"`
	NeedsReview bool     `json:"needs_review" gorm:"default:false"`
	// FlaggedQuestions holds question IDs that expired unanswered ([]uint).
	FlaggedQuestions datatypes.JSON `json:"flagged_questions" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Answers []Answer `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
}

func (Attempt) TableName() string {
	return "attempts"
}

func (a *Attempt) IsCompleted() bool {
	return a.CompletedAt != nil
}

// Flagged decodes FlaggedQuestions. A malformed column reads as empty.
func (a *Attempt) Flagged() []uint {
	var ids []uint
	if len(a.FlaggedQuestions) == 0 {
		return ids
	}
	_ = json.Unmarshal(a.FlaggedQuestions, &ids)
	return ids
}

// AddFlag records questionID as flagged. It reports false when it was already present.
func (a *Attempt) AddFlag(questionID uint) bool {
	ids := a.Flagged()
	for _, id := range ids {
		if id == questionID {
			return false
		}
	}
	ids = append(ids, questionID)
	raw, _ := json.Marshal(ids)
	a.FlaggedQuestions = datatypes.JSON(raw)
	a.NeedsReview = true
	return true
}
