package repositories

import (
	"context"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
)

// AssessmentRepository reads assessment content. Authoring lives elsewhere.
type AssessmentRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Assessment, error)
	// GetTree loads parts, blocks, questions and options, each ordered by OrderIndex.
	GetTree(ctx context.Context, id uint) (*models.Assessment, error)
}
