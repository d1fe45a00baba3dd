package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"github.com/stretchr/testify/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockAnswerWriter is a testify mock of AnswerWriter.
type MockAnswerWriter struct {
	mock.Mock
}

func (m *MockAnswerWriter) Upsert(ctx context.Context, answer *models.Answer) error {
	args := m.Called(ctx, answer)
	return args.Error(0)
}

// memoryAnswers is an AnswerWriter keeping the last row per question.
type memoryAnswers struct {
	mu     sync.Mutex
	rows   map[uint]models.Answer
	writes int
	// gate, when set, blocks the next Upsert until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func newMemoryAnswers() *memoryAnswers {
	return &memoryAnswers{rows: make(map[uint]models.Answer)}
}

func (m *memoryAnswers) Upsert(ctx context.Context, answer *models.Answer) error {
	m.mu.Lock()
	gate, entered := m.gate, m.entered
	m.gate, m.entered = nil, nil
	m.mu.Unlock()

	if gate != nil {
		close(entered)
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[answer.QuestionID] = *answer
	m.writes++
	return nil
}

func (m *memoryAnswers) blockNext() (entered <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
	m.entered = make(chan struct{})
	gate := m.gate
	return m.entered, func() { close(gate) }
}

func (m *memoryAnswers) row(questionID uint) (models.Answer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[questionID]
	return a, ok
}

func (m *memoryAnswers) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memoryAnswers) stored(questionID uint) Payload {
	a, ok := m.row(questionID)
	if !ok {
		return nil
	}
	p, err := DecodePayload(a.Kind, a.Payload)
	if err != nil {
		return nil
	}
	return p
}

// memoryAttempts records attempt writes.
type memoryAttempts struct {
	mu          sync.Mutex
	completions int
	completedAt time.Time
	score       *float64
	needsReview bool
	position    *int
	flagged     []uint
	failWith    error
}

func (m *memoryAttempts) CompleteAttempt(ctx context.Context, id uint, completedAt time.Time, score *float64, needsReview bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.completions++
	m.completedAt = completedAt
	m.score = score
	m.needsReview = needsReview
	return nil
}

func (m *memoryAttempts) UpdatePosition(ctx context.Context, id uint, questionIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.position = &questionIndex
	return nil
}

func (m *memoryAttempts) FlagQuestion(ctx context.Context, id uint, questionID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flagged = append(m.flagged, questionID)
	return nil
}
