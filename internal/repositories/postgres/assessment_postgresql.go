package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"github.com/SAP-F-2025/assessment-session-service/internal/repositories"
	"gorm.io/gorm"
)

type AssessmentPostgreSQL struct {
	db *gorm.DB
}

func NewAssessmentPostgreSQL(db *gorm.DB) repositories.AssessmentRepository {
	return &AssessmentPostgreSQL{db: db}
}

func (a *AssessmentPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Assessment, error) {
	var assessment models.Assessment
	if err := a.db.WithContext(ctx).First(&assessment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return &assessment, nil
}

func (a *AssessmentPostgreSQL) GetTree(ctx context.Context, id uint) (*models.Assessment, error) {
	byOrder := func(db *gorm.DB) *gorm.DB {
		return db.Order("order_index ASC, id ASC")
	}

	var assessment models.Assessment
	err := a.db.WithContext(ctx).
		Preload("Parts", byOrder).
		Preload("Parts.Blocks", byOrder).
		Preload("Parts.Blocks.Questions", byOrder).
		Preload("Parts.Blocks.Questions.Options", byOrder).
		First(&assessment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load assessment tree: %w", err)
	}
	return &assessment, nil
}
