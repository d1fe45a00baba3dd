package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/events"
	"github.com/SAP-F-2025/assessment-session-service/internal/models"
)

const (
	DefaultMaxRecording = 5 * time.Minute
	DefaultMaxTimed     = 10 * time.Minute

	expiryWorkLimit = 30 * time.Second
)

// Loader fetches what a session needs at start.
type Loader interface {
	LoadTree(ctx context.Context, assessmentID uint) (*models.Assessment, error)
	// OpenAttempt returns the user's open attempt, creating one if none
	// exists. resumed is true for an existing attempt.
	OpenAttempt(ctx context.Context, userID string, assessmentID uint) (attempt *models.Attempt, resumed bool, err error)
	LoadAnswers(ctx context.Context, attemptID uint) ([]*models.Answer, error)
}

// AttemptStore is the attempt persistence a session writes through.
type AttemptStore interface {
	AttemptWriter
	FlagQuestion(ctx context.Context, id uint, questionID uint) error
}

type Config struct {
	MaxRecording time.Duration
	MaxTimed     time.Duration
	TextDebounce time.Duration
	AllowJump    bool
}

type Deps struct {
	Attempts  AttemptStore
	Answers   AnswerWriter
	Uploader  *Uploader
	Devices   DeviceProvider
	Publisher events.EventPublisher
	Clock     Clock
	Logger    *slog.Logger
	Metrics   Metrics
	Config    Config
}

// Session drives one candidate's attempt. All operations are serialized;
// timer expiry arrives on the clock's goroutine and takes the same lock.
type Session struct {
	mu         sync.Mutex
	userID     string
	attempt    *models.Attempt
	assessment *models.Assessment

	nav       *Navigator
	answers   *AnswerStore
	timer     *Timer
	capture   *CaptureController
	devices   DeviceProvider
	uploader  *Uploader
	attempts  AttemptStore
	publisher events.EventPublisher
	clock     Clock
	logger    *slog.Logger
	metrics   Metrics
	maxTimed  time.Duration

	// remaining holds unexpired countdowns of timed questions left mid-way.
	remaining map[uint]int
	closed    bool
}

// Snapshot is the client-facing view of a session.
type Snapshot struct {
	AttemptID    uint              `json:"attempt_id"`
	AssessmentID uint              `json:"assessment_id"`
	Title        string            `json:"title"`
	Status       NavStatus         `json:"status"`
	Index        int               `json:"index"`
	Total        int               `json:"total"`
	Question     *models.Question  `json:"question"`
	AnswerKind   models.AnswerKind `json:"answer_kind,omitempty"`
	Answer       Payload           `json:"answer,omitempty"`
	Locked       bool              `json:"locked"`
	Timer        TimerState        `json:"timer"`
	Capture      CaptureSnapshot   `json:"capture"`
	SaveStatus   SaveStatus        `json:"save_status"`
	Progress     Progress          `json:"progress"`
	Flagged      []uint            `json:"flagged_questions,omitempty"`
}

// Load prepares a session: the assessment tree, the open or new attempt and
// its stored answers, positioned at the resume marker.
func Load(ctx context.Context, loader Loader, deps Deps, userID string, assessmentID uint) (*Session, error) {
	tree, err := loader.LoadTree(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment %d: %w", assessmentID, err)
	}
	questions := Flatten(tree)
	if len(questions) == 0 {
		return nil, ErrEmptyAssessment
	}

	attempt, resumed, err := loader.OpenAttempt(ctx, userID, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to open attempt: %w", err)
	}
	if attempt.IsCompleted() {
		return nil, ErrSessionFinished
	}

	var stored []*models.Answer
	if resumed {
		if stored, err = loader.LoadAnswers(ctx, attempt.ID); err != nil {
			return nil, fmt.Errorf("failed to load answers: %w", err)
		}
	}

	s := newSession(deps, userID, tree, attempt)
	if err := s.answers.Seed(stored); err != nil {
		return nil, err
	}
	for _, id := range attempt.Flagged() {
		s.answers.Lock(id)
	}

	start := 0
	if attempt.CurrentQuestionIndex != nil {
		start = *attempt.CurrentQuestionIndex
	}
	s.nav, err = NewNavigator(NavigatorConfig{
		AttemptID:  attempt.ID,
		Questions:  questions,
		StartIndex: start,
		Answers:    s.answers,
		Attempts:   deps.Attempts,
		Clock:      s.clock,
		AllowJump:  deps.Config.AllowJump,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.activate()
	s.mu.Unlock()

	if resumed {
		s.publish(ctx, events.EventAttemptResumed, events.AttemptResumedEvent{
			AttemptID:     attempt.ID,
			AssessmentID:  assessmentID,
			UserID:        userID,
			QuestionIndex: s.nav.Position(),
		})
	} else {
		s.publish(ctx, events.EventAttemptStarted, events.AttemptStartedEvent{
			AttemptID:     attempt.ID,
			AssessmentID:  assessmentID,
			UserID:        userID,
			StartedAt:     attempt.StartedAt,
			QuestionCount: len(questions),
		})
	}

	s.logger.Info("Session loaded",
		"resumed", resumed,
		"index", s.nav.Position(),
		"questions", len(questions))
	return s, nil
}

func newSession(deps Deps, userID string, tree *models.Assessment, attempt *models.Attempt) *Session {
	clock := deps.Clock
	if clock == nil {
		clock = RealClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("attempt_id", attempt.ID, "assessment_id", tree.ID)
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	devices := deps.Devices
	if devices == nil {
		devices = NewRelayDevices()
	}

	cfg := deps.Config
	if cfg.MaxRecording <= 0 {
		cfg.MaxRecording = DefaultMaxRecording
	}
	if cfg.MaxTimed <= 0 {
		cfg.MaxTimed = DefaultMaxTimed
	}
	maxBytes := DefaultMaxUploadBytes
	if deps.Uploader != nil {
		maxBytes = deps.Uploader.MaxBytes()
	}

	return &Session{
		userID:     userID,
		attempt:    attempt,
		assessment: tree,
		answers: NewAnswerStore(AnswerStoreConfig{
			AttemptID: attempt.ID,
			Writer:    deps.Answers,
			Clock:     clock,
			Debounce:  cfg.TextDebounce,
			Logger:    logger,
			Metrics:   metrics,
		}),
		timer:     NewTimer(clock),
		capture:   NewCaptureController(devices, clock, cfg.MaxRecording, maxBytes),
		devices:   devices,
		uploader:  deps.Uploader,
		attempts:  deps.Attempts,
		publisher: deps.Publisher,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		maxTimed:  cfg.MaxTimed,
		remaining: make(map[uint]int),
	}
}

func (s *Session) AttemptID() uint    { return s.attempt.ID }
func (s *Session) UserID() string     { return s.userID }
func (s *Session) AssessmentID() uint { return s.assessment.ID }

func (s *Session) checkOpen() error {
	if s.closed || s.nav.Status() != NavActive {
		return ErrSessionFinished
	}
	return nil
}

// activate binds the timer to the current question. Caller holds s.mu.
func (s *Session) activate() {
	q := s.nav.Current()
	if !q.IsTimed() || s.answers.IsLocked(q.ID) {
		return
	}

	seconds, ok := s.remaining[q.ID]
	if !ok {
		seconds = *q.TimeLimitSeconds
	}
	if limit := int(s.maxTimed / time.Second); seconds > limit {
		seconds = limit
	}

	s.timer.Reset()
	if err := s.timer.Arm(seconds, s.onExpire(q.ID)); err != nil {
		s.logger.Error("Failed to arm question timer", "question_id", q.ID, "error", err)
		return
	}
	s.timer.Start()
}

// deactivate releases everything bound to q. Caller holds s.mu.
// A countdown that ran out while its expiry callback waited on s.mu is
// settled here, before the timer is reset.
func (s *Session) deactivate(ctx context.Context, q *models.Question) {
	state := s.timer.Snapshot()
	if state.Active {
		s.remaining[q.ID] = state.Remaining
	}
	if state.Expired && !s.answers.IsLocked(q.ID) {
		s.finishExpired(ctx, q, true)
	}
	s.timer.Reset()
	s.capture.Close()
}

// settleExpiry finalizes the current question when its countdown has run
// out but the expiry callback has not taken s.mu yet. Caller holds s.mu.
func (s *Session) settleExpiry(ctx context.Context) {
	q := s.nav.Current()
	if s.timer.Snapshot().Expired && !s.answers.IsLocked(q.ID) {
		s.finishExpired(ctx, q, true)
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	q := s.nav.Current()
	snap := Snapshot{
		AttemptID:    s.attempt.ID,
		AssessmentID: s.assessment.ID,
		Title:        s.assessment.Title,
		Status:       s.nav.Status(),
		Index:        s.nav.Position(),
		Total:        s.nav.Len(),
		Question:     q,
		Locked:       s.answers.IsLocked(q.ID),
		Timer:        s.timer.Snapshot(),
		Capture:      s.capture.Snapshot(),
		SaveStatus:   s.answers.SaveStatus(),
		Progress:     s.nav.Progress(),
		Flagged:      s.attempt.Flagged(),
	}
	if p, ok := s.answers.Answer(q.ID); ok {
		snap.Answer = p
		snap.AnswerKind = p.Kind()
	}
	return snap
}

// SetAnswer records a non-recording answer for the current question.
func (s *Session) SetAnswer(ctx context.Context, questionID uint, p Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	s.settleExpiry(ctx)
	q := s.nav.Current()
	if q.ID != questionID {
		return ErrNotCurrentQuestion
	}
	if _, isVideo := p.(VideoAnswer); isVideo {
		return fmt.Errorf("%w: recordings are submitted through the recorder", ErrPayloadMismatch)
	}
	if err := CheckPayload(q, p); err != nil {
		return err
	}
	return s.answers.SetAnswer(ctx, questionID, p)
}

func (s *Session) Next(ctx context.Context) (Snapshot, error) {
	return s.navigate(ctx, s.nav.Next)
}

func (s *Session) Previous(ctx context.Context) (Snapshot, error) {
	return s.navigate(ctx, s.nav.Previous)
}

func (s *Session) JumpTo(ctx context.Context, k int) (Snapshot, error) {
	return s.navigate(ctx, func() error { return s.nav.JumpTo(k) })
}

func (s *Session) navigate(ctx context.Context, move func() error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return Snapshot{}, err
	}
	err := s.step(ctx, move)
	return s.snapshot(), err
}

// step applies a navigation move and rebinds the timer. Caller holds s.mu.
func (s *Session) step(ctx context.Context, move func() error) error {
	s.settleExpiry(ctx)
	from := s.nav.Current()
	if err := move(); err != nil {
		return err
	}
	s.leave(ctx, from)
	s.activate()
	return nil
}

// leave tears down the question being left and saves its pending edit.
// A failed save is visible through SaveStatus.
func (s *Session) leave(ctx context.Context, q *models.Question) {
	s.deactivate(ctx, q)
	_ = s.answers.FlushQuestion(ctx, q.ID)
}

// Complete flushes answers, scores them and finalizes the attempt once.
func (s *Session) Complete(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return Outcome{}, err
	}
	s.settleExpiry(ctx)
	if err := s.nav.CanComplete(); err != nil {
		return Outcome{}, err
	}
	if err := s.answers.Flush(ctx); err != nil {
		return Outcome{}, err
	}

	outcome := Score(s.nav.Questions(), s.answers.Answers())
	if len(s.attempt.Flagged()) > 0 {
		outcome.NeedsReview = true
	}
	if err := s.nav.Complete(ctx, outcome); err != nil {
		return Outcome{}, err
	}

	now := s.clock.Now()
	s.attempt.CompletedAt = &now
	s.attempt.Score = outcome.Score
	s.attempt.NeedsReview = s.attempt.NeedsReview || outcome.NeedsReview
	s.teardown()

	s.publish(ctx, events.EventAttemptCompleted, events.AttemptCompletedEvent{
		AttemptID:    s.attempt.ID,
		AssessmentID: s.assessment.ID,
		UserID:       s.userID,
		CompletedAt:  now,
		Score:        outcome.Score,
		NeedsReview:  outcome.NeedsReview,
		Flagged:      s.attempt.Flagged(),
	})
	s.logger.Info("Attempt completed", "needs_review", outcome.NeedsReview)
	return outcome, nil
}

// SaveAndExit flushes answers and stores the resume marker.
func (s *Session) SaveAndExit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	s.settleExpiry(ctx)
	if err := s.answers.Flush(ctx); err != nil {
		return err
	}
	if err := s.nav.SaveAndExit(ctx); err != nil {
		return err
	}
	s.teardown()

	progress := s.nav.Progress()
	s.publish(ctx, events.EventAttemptSavedExited, events.AttemptSavedExitedEvent{
		AttemptID:     s.attempt.ID,
		AssessmentID:  s.assessment.ID,
		UserID:        s.userID,
		QuestionIndex: s.nav.Position(),
		Answered:      progress.Answered,
		Total:         progress.Total,
	})
	return nil
}

// Close releases the timer, the capture stream and pending debounced
// writes. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown()
}

func (s *Session) teardown() {
	if s.closed {
		return
	}
	s.closed = true
	s.timer.Reset()
	s.capture.Close()
	s.answers.Close()
}

// Flush persists pending answer edits.
func (s *Session) Flush(ctx context.Context) error {
	return s.answers.Flush(ctx)
}

func (s *Session) onExpire(questionID uint) func() {
	return func() { s.expire(questionID) }
}

// expire finalizes the question whose countdown ran out, then moves on
// if it is still current and there is a next question. An operation that
// took s.mu first has usually settled it already.
func (s *Session) expire(questionID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkOpen() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), expiryWorkLimit)
	defer cancel()

	q := s.nav.Current()
	if q.ID != questionID {
		i := s.nav.IndexOf(questionID)
		if i >= 0 && !s.answers.IsLocked(questionID) {
			s.finishExpired(ctx, s.nav.Questions()[i], false)
		}
		return
	}
	if !s.answers.IsLocked(q.ID) {
		s.finishExpired(ctx, q, true)
	}

	if s.nav.Position() < s.nav.Len()-1 {
		if err := s.nav.Next(); err != nil {
			s.logger.Warn("Auto-advance after expiry refused", "question_id", q.ID, "error", err)
			return
		}
		s.deactivate(ctx, q)
		s.activate()
	}
}

// finishExpired auto-submits and locks q, flagging it when it was required
// and left unanswered. bound is false once the recorder has been handed to
// another question; the stored draft is then all there is. Caller holds s.mu.
func (s *Session) finishExpired(ctx context.Context, q *models.Question, bound bool) {
	var answered bool
	if bound {
		answered = s.autoSubmit(ctx, q)
	} else {
		p, err := s.answers.AutoSubmit(ctx, q.ID, nil)
		if err != nil {
			s.logger.Warn("Auto-submitted answer not saved", "question_id", q.ID, "error", err)
		}
		answered = p != nil && Satisfies(q, p)
	}
	s.metrics.QuestionExpired(q.Type, answered)

	if !answered && q.IsRequired {
		s.attempt.AddFlag(q.ID)
		if err := s.attempts.FlagQuestion(ctx, s.attempt.ID, q.ID); err != nil {
			s.logger.Error("Failed to flag expired question", "question_id", q.ID, "error", err)
		}
	}

	s.publish(ctx, events.EventQuestionExpired, events.QuestionExpiredEvent{
		AttemptID:     s.attempt.ID,
		QuestionID:    q.ID,
		QuestionIndex: s.nav.IndexOf(q.ID),
		Answered:      answered,
		UserID:        s.userID,
	})
	s.logger.Info("Question expired", "question_id", q.ID, "answered", answered)
}

// autoSubmit finalizes q with whatever the candidate produced.
func (s *Session) autoSubmit(ctx context.Context, q *models.Question) bool {
	recording := q.Type == models.QuestionVideo
	if q.Type == models.QuestionScenario {
		switch s.capture.State() {
		case CaptureRecording, CapturePaused, CaptureStopped:
			recording = true
		}
	}

	var final Payload
	if recording {
		final = s.autoSubmitRecording(ctx, q)
	} else {
		p, err := s.answers.AutoSubmit(ctx, q.ID, nil)
		if err != nil {
			s.logger.Warn("Auto-submitted answer not saved", "question_id", q.ID, "error", err)
		}
		final = p
	}
	return final != nil && Satisfies(q, final)
}

func (s *Session) autoSubmitRecording(ctx context.Context, q *models.Question) Payload {
	defer s.capture.Close()

	artifact := s.capture.StopRecording()
	if artifact == nil {
		artifact = s.capture.Artifact()
	}

	var draft Payload
	if artifact != nil && artifact.Size > 0 {
		if answer, err := s.uploadArtifact(ctx, q, artifact); err != nil {
			s.logger.Warn("Draft recording upload failed on expiry", "question_id", q.ID, "error", err)
		} else {
			draft = answer
		}
	}

	p, err := s.answers.AutoSubmit(ctx, q.ID, draft)
	if err != nil {
		s.logger.Warn("Auto-submitted recording not saved", "question_id", q.ID, "error", err)
	}
	return p
}

func (s *Session) uploadArtifact(ctx context.Context, q *models.Question, artifact *Artifact) (VideoAnswer, error) {
	if s.uploader == nil {
		return VideoAnswer{}, &UploadError{Kind: UploadUnknown, Err: errors.New("no storage configured")}
	}
	res, err := s.uploader.Upload(ctx, artifact, s.userID, s.attempt.ID, q.ID)
	if err != nil {
		return VideoAnswer{}, err
	}

	answer := VideoAnswer{
		StorageKey:      res.Key,
		URL:             res.URL,
		DurationSeconds: artifact.Duration.Seconds(),
		SizeBytes:       artifact.Size,
	}
	s.publish(ctx, events.EventRecordingUploaded, events.RecordingUploadedEvent{
		AttemptID:       s.attempt.ID,
		QuestionID:      q.ID,
		UserID:          s.userID,
		StorageKey:      res.Key,
		URL:             res.URL,
		SizeBytes:       artifact.Size,
		DurationSeconds: answer.DurationSeconds,
	})
	return answer, nil
}

func (s *Session) publish(ctx context.Context, eventType events.EventType, data interface{}) {
	if s.publisher == nil {
		return
	}
	event := events.NewSessionEvent(eventType, s.attempt.ID, data)
	if err := s.publisher.PublishSessionEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish session event", "event_type", eventType, "error", err)
	}
}
