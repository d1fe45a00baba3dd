package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"github.com/SAP-F-2025/assessment-session-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.Attempt) error {
	if err := a.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithAnswers(ctx context.Context, id uint) (*models.Attempt, error) {
	var attempt models.Attempt
	err := a.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("question_id ASC") }).
		First(&attempt, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attempt with answers: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetOpenAttempt(ctx context.Context, userID string, assessmentID uint) (*models.Attempt, error) {
	var attempt models.Attempt
	err := a.db.WithContext(ctx).
		Where("user_id = ? AND assessment_id = ? AND completed_at IS NULL", userID, assessmentID).
		Order("started_at DESC").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get open attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) UpdatePosition(ctx context.Context, id uint, questionIndex int) error {
	result := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ?", id).
		Update("current_question_index", questionIndex)
	if result.Error != nil {
		return fmt.Errorf("failed to update attempt position: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (a *AttemptPostgreSQL) FlagQuestion(ctx context.Context, id uint, questionID uint) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempt models.Attempt
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&attempt, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repositories.ErrNotFound
			}
			return fmt.Errorf("failed to lock attempt: %w", err)
		}

		if !attempt.AddFlag(questionID) {
			return nil
		}

		if err := tx.Model(&attempt).Updates(map[string]interface{}{
			"flagged_questions": attempt.FlaggedQuestions,
			"needs_review":      true,
		}).Error; err != nil {
			return fmt.Errorf("failed to flag question: %w", err)
		}
		return nil
	})
}

func (a *AttemptPostgreSQL) CompleteAttempt(ctx context.Context, id uint, completedAt time.Time, score *float64, needsReview bool) error {
	// needs_review only ever turns on here; expiry flags set earlier must survive.
	updates := map[string]interface{}{
		"completed_at": completedAt,
		"score":        score,
	}
	if needsReview {
		updates["needs_review"] = true
	}

	result := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND completed_at IS NULL", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to complete attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
