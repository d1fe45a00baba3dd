package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
)

// AttemptRepository persists attempt lifecycle state
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	GetByID(ctx context.Context, id uint) (*models.Attempt, error)
	GetByIDWithAnswers(ctx context.Context, id uint) (*models.Attempt, error)
	// GetOpenAttempt returns the most recent uncompleted attempt or ErrNotFound.
	GetOpenAttempt(ctx context.Context, userID string, assessmentID uint) (*models.Attempt, error)

	UpdatePosition(ctx context.Context, id uint, questionIndex int) error
	FlagQuestion(ctx context.Context, id uint, questionID uint) error
	// CompleteAttempt fails with ErrNotFound when the attempt is missing or already completed.
	CompleteAttempt(ctx context.Context, id uint, completedAt time.Time, score *float64, needsReview bool) error
}

// AnswerRepository persists answers, one row per (attempt, question)
type AnswerRepository interface {
	Upsert(ctx context.Context, answer *models.Answer) error
	GetByAttempt(ctx context.Context, attemptID uint) ([]*models.Answer, error)
}
