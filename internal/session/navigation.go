package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
)

type NavStatus string

const (
	NavActive      NavStatus = "active"
	NavCompleted   NavStatus = "completed"
	NavSavedExited NavStatus = "saved_exited"
)

// AttemptWriter persists attempt-level navigation outcomes.
type AttemptWriter interface {
	CompleteAttempt(ctx context.Context, id uint, completedAt time.Time, score *float64, needsReview bool) error
	UpdatePosition(ctx context.Context, id uint, questionIndex int) error
}

// AnswerView is what the gate needs to know about answers.
type AnswerView interface {
	Answer(questionID uint) (Payload, bool)
	IsLocked(questionID uint) bool
}

// Outcome is written on the attempt when it completes.
type Outcome struct {
	Score       *float64
	NeedsReview bool
}

type Progress struct {
	Answered int     `json:"answered"`
	Total    int     `json:"total"`
	Percent  float64 `json:"percent"`
}

// Flatten orders parts, blocks and questions by OrderIndex, ties by ID.
func Flatten(a *models.Assessment) []*models.Question {
	parts := make([]*models.Part, 0, len(a.Parts))
	for i := range a.Parts {
		parts = append(parts, &a.Parts[i])
	}
	sort.SliceStable(parts, func(i, j int) bool {
		return orderLess(parts[i].OrderIndex, parts[i].ID, parts[j].OrderIndex, parts[j].ID)
	})

	var out []*models.Question
	for _, p := range parts {
		blocks := make([]*models.Block, 0, len(p.Blocks))
		for i := range p.Blocks {
			blocks = append(blocks, &p.Blocks[i])
		}
		sort.SliceStable(blocks, func(i, j int) bool {
			return orderLess(blocks[i].OrderIndex, blocks[i].ID, blocks[j].OrderIndex, blocks[j].ID)
		})

		for _, b := range blocks {
			qs := make([]*models.Question, 0, len(b.Questions))
			for i := range b.Questions {
				qs = append(qs, &b.Questions[i])
			}
			sort.SliceStable(qs, func(i, j int) bool {
				return orderLess(qs[i].OrderIndex, qs[i].ID, qs[j].OrderIndex, qs[j].ID)
			})
			out = append(out, qs...)
		}
	}
	return out
}

func orderLess(ai int, aid uint, bi int, bid uint) bool {
	if ai != bi {
		return ai < bi
	}
	return aid < bid
}

// Navigator walks the flat question list of one attempt. Completion and
// save-and-exit are terminal.
type Navigator struct {
	mu        sync.Mutex
	attemptID uint
	questions []*models.Question
	index     int
	furthest  int
	status    NavStatus
	answers   AnswerView
	attempts  AttemptWriter
	clock     Clock
	allowJump bool
}

type NavigatorConfig struct {
	AttemptID  uint
	Questions  []*models.Question
	StartIndex int
	Answers    AnswerView
	Attempts   AttemptWriter
	Clock      Clock
	AllowJump  bool
}

func NewNavigator(cfg NavigatorConfig) (*Navigator, error) {
	if len(cfg.Questions) == 0 {
		return nil, ErrEmptyAssessment
	}
	start := cfg.StartIndex
	if start < 0 || start >= len(cfg.Questions) {
		start = 0
	}
	return &Navigator{
		attemptID: cfg.AttemptID,
		questions: cfg.Questions,
		index:     start,
		furthest:  start,
		status:    NavActive,
		answers:   cfg.Answers,
		attempts:  cfg.Attempts,
		clock:     cfg.Clock,
		allowJump: cfg.AllowJump,
	}, nil
}

// gate reports whether question i lets the candidate move forward.
// Expired questions pass: their answer is final either way.
func (n *Navigator) gate(i int) bool {
	q := n.questions[i]
	if !q.IsRequired || n.answers.IsLocked(q.ID) {
		return true
	}
	p, ok := n.answers.Answer(q.ID)
	return ok && Satisfies(q, p)
}

func (n *Navigator) checkActive() error {
	if n.status != NavActive {
		return ErrSessionFinished
	}
	return nil
}

func (n *Navigator) moveTo(i int) {
	n.index = i
	if i > n.furthest {
		n.furthest = i
	}
}

func (n *Navigator) Next() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkActive(); err != nil {
		return err
	}
	if n.index >= len(n.questions)-1 {
		return ErrNoNextQuestion
	}
	if !n.gate(n.index) {
		return &GateError{QuestionID: n.questions[n.index].ID, Index: n.index}
	}
	n.moveTo(n.index + 1)
	return nil
}

// Previous is never gated.
func (n *Navigator) Previous() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkActive(); err != nil {
		return err
	}
	if n.index == 0 {
		return ErrNoPreviousQuestion
	}
	n.index--
	return nil
}

// JumpTo bypasses the gate. It is a testing aid and off unless enabled.
func (n *Navigator) JumpTo(k int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkActive(); err != nil {
		return err
	}
	if !n.allowJump {
		return ErrJumpDisabled
	}
	if k < 0 || k >= len(n.questions) {
		return ErrIndexOutOfRange
	}
	n.moveTo(k)
	return nil
}

// Complete finalizes the attempt from the last question. It succeeds at
// most once; a failed write leaves the navigator active.
func (n *Navigator) Complete(ctx context.Context, outcome Outcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkActive(); err != nil {
		return err
	}
	if n.index != len(n.questions)-1 {
		return ErrNotAtLastQuestion
	}
	if !n.gate(n.index) {
		return &GateError{QuestionID: n.questions[n.index].ID, Index: n.index}
	}

	err := n.attempts.CompleteAttempt(ctx, n.attemptID, n.clock.Now(), outcome.Score, outcome.NeedsReview)
	if err != nil {
		return &PersistenceError{Op: "complete attempt", Err: err}
	}
	n.status = NavCompleted
	return nil
}

// CanComplete runs the completion checks without finalizing.
func (n *Navigator) CanComplete() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkActive(); err != nil {
		return err
	}
	if n.index != len(n.questions)-1 {
		return ErrNotAtLastQuestion
	}
	if !n.gate(n.index) {
		return &GateError{QuestionID: n.questions[n.index].ID, Index: n.index}
	}
	return nil
}

// SaveAndExit stores the resume marker and ends navigation without completing.
func (n *Navigator) SaveAndExit(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkActive(); err != nil {
		return err
	}
	if err := n.attempts.UpdatePosition(ctx, n.attemptID, n.index); err != nil {
		return &PersistenceError{Op: "save position", Err: err}
	}
	n.status = NavSavedExited
	return nil
}

// Progress counts questions that are answered, expired, or optional and
// already passed.
func (n *Navigator) Progress() Progress {
	n.mu.Lock()
	defer n.mu.Unlock()

	done := 0
	for i, q := range n.questions {
		p, ok := n.answers.Answer(q.ID)
		switch {
		case ok && Satisfies(q, p):
			done++
		case n.answers.IsLocked(q.ID):
			done++
		case !q.IsRequired && i < n.furthest:
			done++
		}
	}
	total := len(n.questions)
	return Progress{
		Answered: done,
		Total:    total,
		Percent:  float64(done) * 100 / float64(total),
	}
}

func (n *Navigator) Current() *models.Question {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.questions[n.index]
}

func (n *Navigator) Position() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

func (n *Navigator) Status() NavStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (n *Navigator) Len() int {
	return len(n.questions)
}

// Questions returns the flattened sequence. Callers must not modify it.
func (n *Navigator) Questions() []*models.Question {
	return n.questions
}

// IndexOf returns the position of a question, or -1.
func (n *Navigator) IndexOf(questionID uint) int {
	for i, q := range n.questions {
		if q.ID == questionID {
			return i
		}
	}
	return -1
}
