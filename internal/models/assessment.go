package models

import (
	"time"

	"gorm.io/gorm"
)

type AssessmentStatus string

const (
	StatusDraft    AssessmentStatus = "Draft"
	StatusActive   AssessmentStatus = "Active"
	StatusArchived AssessmentStatus = "Archived"
)

type QuestionType string

const (
	QuestionChoice   QuestionType = "choice"
	QuestionText     QuestionType = "text"
	QuestionRating   QuestionType = "rating"
	QuestionVideo    QuestionType = "video"
	QuestionScenario QuestionType = "scenario"
)

// Assessment is the root of the part -> block -> question tree.
type Assessment struct {
	ID          uint             `json:"id" gorm:"primaryKey"`
	Title       string           `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string          `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Status      AssessmentStatus `json:"status" gorm:"default:Draft;index" validate:"omitempty,assessment_status"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Parts []Part `json:"parts" gorm:"foreignKey:AssessmentID"`
}

type Part struct {
	ID           uint    `json:"id" gorm:"primaryKey"`
	AssessmentID uint    `json:"assessment_id" gorm:"not null;index"`
	Title        string  `json:"title" gorm:"not null;size:200"`
	Description  *string `json:"description" gorm:"type:text"`
	OrderIndex   int     `json:"order_index" gorm:"not null;default:0"`

	Blocks []Block `json:"blocks" gorm:"foreignKey:PartID"`
}

// Block groups questions that share a presentation type.
type Block struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	PartID     uint   `json:"part_id" gorm:"not null;index"`
	Title      string `json:"title" gorm:"size:200"`
	BlockType  string `json:"block_type" gorm:"size:50"`
	OrderIndex int    `json:"order_index" gorm:"not null;default:0"`

	Questions []Question `json:"questions" gorm:"foreignKey:BlockID"`
}

type Question struct {
	ID         uint         `json:"id" gorm:"primaryKey"`
	BlockID    uint         `json:"block_id" gorm:"not null;index"`
	Type       QuestionType `json:"type" gorm:"not null;size:20" validate:"required,question_type"`
	Text       string       `json:"text" gorm:"not null;type:text" validate:"required"`
	IsRequired bool         `json:"is_required" gorm:"default:false"`
	OrderIndex int          `json:"order_index" gorm:"not null;default:0"`

	// TimeLimitSeconds is nil for untimed questions.
	TimeLimitSeconds *int `json:"time_limit_seconds" validate:"omitempty,min=1,max=600"`
	RatingMin        int  `json:"rating_min" gorm:"default:1"`
	RatingMax        int  `json:"rating_max" gorm:"default:5"`
	Points           int  `json:"points" gorm:"default:1"`

	Options []QuestionOption `json:"options" gorm:"foreignKey:QuestionID"`
}

type QuestionOption struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Text       string `json:"text" gorm:"not null;type:text"`
	IsCorrect  bool   `json:"-" gorm:"default:false"`
	OrderIndex int    `json:"order_index" gorm:"not null;default:0"`
}

func (Assessment) TableName() string {
	return "assessments"
}

func (Part) TableName() string {
	return "assessment_parts"
}

func (Block) TableName() string {
	return "assessment_blocks"
}

func (Question) TableName() string {
	return "questions"
}

func (QuestionOption) TableName() string {
	return "question_options"
}

// IsTimed reports whether the question carries a countdown.
func (q *Question) IsTimed() bool {
	return q.TimeLimitSeconds != nil && *q.TimeLimitSeconds > 0
}

// HasOption reports whether optionID belongs to the question.
func (q *Question) HasOption(optionID uint) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}
