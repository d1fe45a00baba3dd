package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/cache"
	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"github.com/SAP-F-2025/assessment-session-service/internal/repositories"
	"github.com/SAP-F-2025/assessment-session-service/internal/session"
)

// cachedTree is the cache representation of an assessment tree. Option
// correctness is hidden from JSON on the model, so it travels separately.
type cachedTree struct {
	Assessment     *models.Assessment `json:"assessment"`
	CorrectOptions []uint             `json:"correct_options"`
}

func newCachedTree(a *models.Assessment) cachedTree {
	ct := cachedTree{Assessment: a}
	for _, q := range session.Flatten(a) {
		for _, opt := range q.Options {
			if opt.IsCorrect {
				ct.CorrectOptions = append(ct.CorrectOptions, opt.ID)
			}
		}
	}
	return ct
}

func (ct cachedTree) restore() *models.Assessment {
	correct := make(map[uint]bool, len(ct.CorrectOptions))
	for _, id := range ct.CorrectOptions {
		correct[id] = true
	}
	for pi := range ct.Assessment.Parts {
		for bi := range ct.Assessment.Parts[pi].Blocks {
			block := &ct.Assessment.Parts[pi].Blocks[bi]
			for qi := range block.Questions {
				for oi := range block.Questions[qi].Options {
					opt := &block.Questions[qi].Options[oi]
					opt.IsCorrect = correct[opt.ID]
				}
			}
		}
	}
	return ct.Assessment
}

// sessionLoader implements session.Loader on top of the repositories, with
// assessment trees read through the cache.
type sessionLoader struct {
	repo   repositories.Repository
	cache  cache.CacheService
	ttl    time.Duration
	clock  session.Clock
	logger *slog.Logger
}

func newSessionLoader(repo repositories.Repository, c cache.CacheService, ttl time.Duration, clock session.Clock, logger *slog.Logger) *sessionLoader {
	return &sessionLoader{repo: repo, cache: c, ttl: ttl, clock: clock, logger: logger}
}

// LoadTree returns the tree of an active assessment.
func (l *sessionLoader) LoadTree(ctx context.Context, assessmentID uint) (*models.Assessment, error) {
	tree, err := l.tree(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if tree.Status == models.StatusActive {
		return tree, nil
	}

	// The cached copy may predate publishing.
	current, err := l.repo.Assessment().GetByID(ctx, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to load assessment: %w", err)
	}
	if current.Status != models.StatusActive {
		return nil, ErrAssessmentNotActive
	}

	if err := l.cache.DeletePattern(ctx, cache.AssessmentPattern(assessmentID)); err != nil {
		l.logger.Warn("Tree cache invalidation failed", "assessment_id", assessmentID, "error", err)
	}
	tree, err = l.fetchTree(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if tree.Status != models.StatusActive {
		return nil, ErrAssessmentNotActive
	}
	return tree, nil
}

func (l *sessionLoader) tree(ctx context.Context, assessmentID uint) (*models.Assessment, error) {
	key := cache.AssessmentTreeKey(assessmentID)

	var cached cachedTree
	err := l.cache.Get(ctx, key, &cached)
	switch {
	case err == nil && cached.Assessment != nil:
		return cached.restore(), nil
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		l.logger.Warn("Tree cache read failed", "assessment_id", assessmentID, "error", err)
	}

	return l.fetchTree(ctx, assessmentID)
}

// fetchTree reads the tree from the database and refreshes the cache.
func (l *sessionLoader) fetchTree(ctx context.Context, assessmentID uint) (*models.Assessment, error) {
	tree, err := l.repo.Assessment().GetTree(ctx, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to load assessment tree: %w", err)
	}

	if err := l.cache.Set(ctx, cache.AssessmentTreeKey(assessmentID), newCachedTree(tree), l.ttl); err != nil {
		l.logger.Warn("Tree cache write failed", "assessment_id", assessmentID, "error", err)
	}
	return tree, nil
}

// OpenAttempt returns the caller's open attempt, creating one in the same
// transaction when none exists.
func (l *sessionLoader) OpenAttempt(ctx context.Context, userID string, assessmentID uint) (*models.Attempt, bool, error) {
	var (
		attempt *models.Attempt
		resumed bool
	)
	err := l.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		open, err := tx.Attempt().GetOpenAttempt(ctx, userID, assessmentID)
		if err == nil {
			attempt, resumed = open, true
			return nil
		}
		if !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to look up open attempt: %w", err)
		}

		created := &models.Attempt{
			UserID:       userID,
			AssessmentID: assessmentID,
			StartedAt:    l.clock.Now(),
		}
		if err := tx.Attempt().Create(ctx, created); err != nil {
			return fmt.Errorf("failed to create attempt: %w", err)
		}
		attempt = created
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return attempt, resumed, nil
}

func (l *sessionLoader) LoadAnswers(ctx context.Context, attemptID uint) ([]*models.Answer, error) {
	return l.repo.Answer().GetByAttempt(ctx, attemptID)
}
