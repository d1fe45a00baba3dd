package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/cache"
	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"github.com/SAP-F-2025/assessment-session-service/internal/repositories"
	"github.com/stretchr/testify/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockAssessmentRepository is a testify mock of repositories.AssessmentRepository.
type MockAssessmentRepository struct {
	mock.Mock
}

func (m *MockAssessmentRepository) GetByID(ctx context.Context, id uint) (*models.Assessment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Assessment), args.Error(1)
}

func (m *MockAssessmentRepository) GetTree(ctx context.Context, id uint) (*models.Assessment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Assessment), args.Error(1)
}

// memoryAttemptRepository keeps attempts by ID and hands out copies.
type memoryAttemptRepository struct {
	mu       sync.Mutex
	attempts map[uint]models.Attempt
	nextID   uint
	answers  *memoryAnswerRepository
}

func (r *memoryAttemptRepository) Create(ctx context.Context, attempt *models.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	attempt.ID = r.nextID
	r.attempts[attempt.ID] = *attempt
	return nil
}

func (r *memoryAttemptRepository) GetByID(ctx context.Context, id uint) (*models.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &a, nil
}

func (r *memoryAttemptRepository) GetByIDWithAnswers(ctx context.Context, id uint) (*models.Attempt, error) {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stored, _ := r.answers.GetByAttempt(ctx, id)
	for _, ans := range stored {
		a.Answers = append(a.Answers, *ans)
	}
	return a, nil
}

func (r *memoryAttemptRepository) GetOpenAttempt(ctx context.Context, userID string, assessmentID uint) (*models.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *models.Attempt
	for _, a := range r.attempts {
		if a.UserID == userID && a.AssessmentID == assessmentID && a.CompletedAt == nil {
			if found == nil || a.ID > found.ID {
				a := a
				found = &a
			}
		}
	}
	if found == nil {
		return nil, repositories.ErrNotFound
	}
	return found, nil
}

func (r *memoryAttemptRepository) update(id uint, fn func(a *models.Attempt) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if err := fn(&a); err != nil {
		return err
	}
	r.attempts[id] = a
	return nil
}

func (r *memoryAttemptRepository) UpdatePosition(ctx context.Context, id uint, questionIndex int) error {
	return r.update(id, func(a *models.Attempt) error {
		a.CurrentQuestionIndex = &questionIndex
		return nil
	})
}

func (r *memoryAttemptRepository) FlagQuestion(ctx context.Context, id uint, questionID uint) error {
	return r.update(id, func(a *models.Attempt) error {
		a.AddFlag(questionID)
		return nil
	})
}

func (r *memoryAttemptRepository) CompleteAttempt(ctx context.Context, id uint, completedAt time.Time, score *float64, needsReview bool) error {
	return r.update(id, func(a *models.Attempt) error {
		if a.CompletedAt != nil {
			return repositories.ErrNotFound
		}
		a.CompletedAt = &completedAt
		a.Score = score
		a.NeedsReview = a.NeedsReview || needsReview
		return nil
	})
}

type answerKey struct{ attemptID, questionID uint }

type memoryAnswerRepository struct {
	mu   sync.Mutex
	rows map[answerKey]models.Answer
}

func (r *memoryAnswerRepository) Upsert(ctx context.Context, answer *models.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[answerKey{answer.AttemptID, answer.QuestionID}] = *answer
	return nil
}

func (r *memoryAnswerRepository) GetByAttempt(ctx context.Context, attemptID uint) ([]*models.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Answer
	for k, a := range r.rows {
		if k.attemptID == attemptID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

// fakeRepository wires the fakes behind repositories.Repository.
type fakeRepository struct {
	assessments *MockAssessmentRepository
	attempts    *memoryAttemptRepository
	answers     *memoryAnswerRepository
}

func newFakeRepository() *fakeRepository {
	answers := &memoryAnswerRepository{rows: make(map[answerKey]models.Answer)}
	return &fakeRepository{
		assessments: &MockAssessmentRepository{},
		attempts:    &memoryAttemptRepository{attempts: make(map[uint]models.Attempt), answers: answers},
		answers:     answers,
	}
}

func (r *fakeRepository) Assessment() repositories.AssessmentRepository { return r.assessments }
func (r *fakeRepository) Attempt() repositories.AttemptRepository       { return r.attempts }
func (r *fakeRepository) Answer() repositories.AnswerRepository         { return r.answers }

func (r *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}

func (r *fakeRepository) Ping(ctx context.Context) error { return nil }

// memoryCache is a JSON round-tripping cache.CacheService.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	data, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) DeletePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func intPtr(v int) *int { return &v }

func uintPtr(v uint) *uint { return &v }

func stringPtr(v string) *string { return &v }

// sampleAssessment is choice (required) -> text (optional) -> video (optional).
func sampleAssessment(status models.AssessmentStatus) *models.Assessment {
	return &models.Assessment{
		ID:     1,
		Title:  "Customer Support Screening",
		Status: status,
		Parts: []models.Part{{
			ID:           1,
			AssessmentID: 1,
			Blocks: []models.Block{{
				ID:     1,
				PartID: 1,
				Questions: []models.Question{
					{
						ID: 1, BlockID: 1, Type: models.QuestionChoice, Text: "Pick one", IsRequired: true, OrderIndex: 0, Points: 1,
						Options: []models.QuestionOption{
							{ID: 11, QuestionID: 1, Text: "Refund", IsCorrect: true, OrderIndex: 0},
							{ID: 12, QuestionID: 1, Text: "Ignore", OrderIndex: 1},
						},
					},
					{ID: 2, BlockID: 1, Type: models.QuestionText, Text: "Explain", OrderIndex: 1},
					{ID: 3, BlockID: 1, Type: models.QuestionVideo, Text: "Introduce yourself", OrderIndex: 2},
				},
			}},
		}},
	}
}
