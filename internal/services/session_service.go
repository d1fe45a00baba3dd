package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/cache"
	"github.com/SAP-F-2025/assessment-session-service/internal/events"
	"github.com/SAP-F-2025/assessment-session-service/internal/repositories"
	"github.com/SAP-F-2025/assessment-session-service/internal/session"
	"github.com/SAP-F-2025/assessment-session-service/internal/storage"
	"github.com/SAP-F-2025/assessment-session-service/internal/validator"
)

type SessionServiceConfig struct {
	Session        session.Config
	MaxUploadBytes int64
	TreeCacheTTL   time.Duration
	// IdleTimeout evicts live sessions nobody has touched for that long.
	// Zero disables the sweep.
	IdleTimeout time.Duration
	// Clock defaults to the real clock.
	Clock session.Clock
}

const (
	maxIdleSweepInterval = time.Minute
	idleSweepLimit       = 30 * time.Second
)

// liveSession is a registry entry. lastUsed is unix nanoseconds.
type liveSession struct {
	sess     *session.Session
	lastUsed atomic.Int64
}

type sessionService struct {
	repo      repositories.Repository
	loader    *sessionLoader
	uploader  *session.Uploader
	publisher events.EventPublisher
	metrics   session.Metrics
	clock     session.Clock
	cfg       session.Config
	validator *validator.Validator
	logger    *slog.Logger
	log       *ServiceLogger

	mu       sync.RWMutex
	sessions map[uint]*liveSession
	// loadMu serializes session construction so an attempt is never live twice.
	loadMu sync.Mutex

	idleTimeout time.Duration
	sweeper     session.Stopper
}

func NewSessionService(
	repo repositories.Repository,
	treeCache cache.CacheService,
	store storage.ObjectStore,
	publisher events.EventPublisher,
	metrics session.Metrics,
	logger *slog.Logger,
	validator *validator.Validator,
	cfg SessionServiceConfig,
) SessionService {
	clock := cfg.Clock
	if clock == nil {
		clock = session.RealClock{}
	}
	if metrics == nil {
		metrics = session.NopMetrics{}
	}
	if treeCache == nil {
		treeCache = cache.NewNoopCache()
	}

	svc := &sessionService{
		repo:      repo,
		loader:    newSessionLoader(repo, treeCache, cfg.TreeCacheTTL, clock, logger),
		uploader:  session.NewUploader(store, clock, cfg.MaxUploadBytes, metrics),
		publisher: publisher,
		metrics:   metrics,
		clock:     clock,
		cfg:       cfg.Session,
		validator: validator,
		logger:    logger,
		log:       NewServiceLogger(logger, LogConfig{Service: "session", Component: "registry"}),
		sessions:  make(map[uint]*liveSession),

		idleTimeout: cfg.IdleTimeout,
	}
	if cfg.IdleTimeout > 0 {
		svc.sweeper = clock.Every(min(cfg.IdleTimeout, maxIdleSweepInterval), svc.sweepIdle)
	}
	return svc
}

// ===== REGISTRY =====

func (s *sessionService) deps() session.Deps {
	return session.Deps{
		Attempts:  s.repo.Attempt(),
		Answers:   s.repo.Answer(),
		Uploader:  s.uploader,
		Devices:   session.NewRelayDevices(),
		Publisher: s.publisher,
		Clock:     s.clock,
		Logger:    s.logger,
		Metrics:   s.metrics,
		Config:    s.cfg,
	}
}

// live returns the hosted session for attemptID and marks it used.
func (s *sessionService) live(attemptID uint) *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[attemptID]
	if !ok {
		return nil
	}
	entry.lastUsed.Store(s.clock.Now().UnixNano())
	return entry.sess
}

func (s *sessionService) register(sess *session.Session) {
	entry := &liveSession{sess: sess}
	entry.lastUsed.Store(s.clock.Now().UnixNano())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.AttemptID()] = entry
}

func (s *sessionService) evict(attemptID uint) {
	s.mu.Lock()
	entry, ok := s.sessions[attemptID]
	delete(s.sessions, attemptID)
	s.mu.Unlock()

	if ok {
		entry.sess.Close()
	}
}

// sweepIdle saves and closes sessions idle past the timeout. The attempt
// stays open; the next request rebuilds it at the saved position.
func (s *sessionService) sweepIdle() {
	ctx, cancel := context.WithTimeout(context.Background(), idleSweepLimit)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.log.LogRecovery(ctx, "idle_sweep", "", r, debug.Stack())
		}
	}()

	cutoff := s.clock.Now().Add(-s.idleTimeout).UnixNano()
	var idle []*session.Session
	s.mu.Lock()
	for id, entry := range s.sessions {
		if entry.lastUsed.Load() <= cutoff {
			idle = append(idle, entry.sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		if err := sess.SaveAndExit(ctx); err != nil {
			s.logger.Warn("Idle session not saved cleanly", "attempt_id", sess.AttemptID(), "error", err)
			if err := sess.Flush(ctx); err != nil {
				s.logger.Error("Failed to flush idle session", "attempt_id", sess.AttemptID(), "error", err)
			}
		}
		sess.Close()
	}
	if len(idle) > 0 {
		s.logger.Info("Idle sessions evicted", "sessions", len(idle))
	}
}

func (s *sessionService) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// load builds a session for the user's open attempt. Caller holds loadMu.
func (s *sessionService) load(ctx context.Context, userID string, assessmentID uint) (*session.Session, error) {
	sess, err := session.Load(ctx, s.loader, s.deps(), userID, assessmentID)
	if err != nil {
		return nil, err
	}
	s.register(sess)
	return sess, nil
}

// lookup returns the live session for attemptID, rebuilding it from the
// database when the attempt is open but not hosted (after a restart or a
// save-and-exit).
func (s *sessionService) lookup(ctx context.Context, attemptID uint, userID string) (*session.Session, error) {
	if sess := s.live(attemptID); sess != nil {
		if sess.UserID() != userID {
			return nil, NewPermissionError(userID, attemptID, "attempt", "access", "attempt belongs to another user")
		}
		return sess, nil
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, attemptID, "attempt", "access", "attempt belongs to another user")
	}
	if attempt.IsCompleted() {
		return nil, ErrAttemptCompleted
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if sess := s.live(attemptID); sess != nil {
		return sess, nil
	}
	sess, err := s.load(ctx, userID, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}
	if sess.AttemptID() != attemptID {
		// A newer open attempt exists for the same assessment.
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// withSession runs fn against the caller's session and logs the outcome.
func (s *sessionService) withSession(ctx context.Context, operation string, attemptID uint, userID string, fn func(*session.Session) error) error {
	op := s.log.WithOperation(ctx, operation, userID)

	sess, err := s.lookup(ctx, attemptID, userID)
	if err == nil {
		err = fn(sess)
	}
	op.LogResult(attemptID, err)
	return err
}

func (s *sessionService) snapshotOp(ctx context.Context, operation string, attemptID uint, userID string, fn func(*session.Session) (session.Snapshot, error)) (*session.Snapshot, error) {
	var snap session.Snapshot
	err := s.withSession(ctx, operation, attemptID, userID, func(sess *session.Session) error {
		var err error
		snap, err = fn(sess)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ===== LIFECYCLE =====

func (s *sessionService) Start(ctx context.Context, req *StartSessionRequest, userID string) (*session.Snapshot, error) {
	op := s.log.WithOperation(ctx, "start_session", userID)

	if err := s.validator.Validate(req); err != nil {
		op.LogResult(0, err)
		return nil, err
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	open, err := s.repo.Attempt().GetOpenAttempt(ctx, userID, req.AssessmentID)
	switch {
	case err == nil:
		if sess := s.live(open.ID); sess != nil {
			snap := sess.Snapshot()
			op.LogResult(open.ID, nil)
			return &snap, nil
		}
	case !repositories.IsNotFoundError(err):
		err = fmt.Errorf("failed to look up open attempt: %w", err)
		op.LogResult(0, err)
		return nil, err
	}

	sess, err := s.load(ctx, userID, req.AssessmentID)
	if err != nil {
		op.LogResult(0, err)
		return nil, err
	}

	snap := sess.Snapshot()
	op.LogResult(sess.AttemptID(), nil)
	s.logger.Info("Session started",
		"attempt_id", sess.AttemptID(),
		"assessment_id", req.AssessmentID,
		"user_id", userID)
	return &snap, nil
}

func (s *sessionService) Get(ctx context.Context, attemptID uint, userID string) (*session.Snapshot, error) {
	return s.snapshotOp(ctx, "get_session", attemptID, userID, func(sess *session.Session) (session.Snapshot, error) {
		return sess.Snapshot(), nil
	})
}

func (s *sessionService) Complete(ctx context.Context, attemptID uint, userID string) (*CompletionResponse, error) {
	var outcome session.Outcome
	err := s.withSession(ctx, "complete_attempt", attemptID, userID, func(sess *session.Session) error {
		var err error
		outcome, err = sess.Complete(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.evict(attemptID)
	return &CompletionResponse{
		AttemptID:   attemptID,
		Score:       outcome.Score,
		NeedsReview: outcome.NeedsReview,
	}, nil
}

func (s *sessionService) SaveAndExit(ctx context.Context, attemptID uint, userID string) error {
	err := s.withSession(ctx, "save_and_exit", attemptID, userID, func(sess *session.Session) error {
		return sess.SaveAndExit(ctx)
	})
	if err != nil {
		return err
	}
	s.evict(attemptID)
	return nil
}

func (s *sessionService) Shutdown(ctx context.Context) error {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}

	s.mu.Lock()
	live := s.sessions
	s.sessions = make(map[uint]*liveSession)
	s.mu.Unlock()

	var errs []error
	for id, entry := range live {
		if err := entry.sess.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("attempt %d: %w", id, err))
		}
		entry.sess.Close()
	}
	s.logger.Info("Session registry drained", "sessions", len(live), "failed", len(errs))
	return errors.Join(errs...)
}

// ===== ANSWERS AND NAVIGATION =====

func (s *sessionService) SetAnswer(ctx context.Context, attemptID, questionID uint, req *AnswerRequest, userID string) (*session.Snapshot, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	payload, err := req.Payload()
	if err != nil {
		return nil, err
	}

	return s.snapshotOp(ctx, "set_answer", attemptID, userID, func(sess *session.Session) (session.Snapshot, error) {
		if err := sess.SetAnswer(ctx, questionID, payload); err != nil {
			return session.Snapshot{}, err
		}
		return sess.Snapshot(), nil
	})
}

func (s *sessionService) Next(ctx context.Context, attemptID uint, userID string) (*session.Snapshot, error) {
	return s.snapshotOp(ctx, "next_question", attemptID, userID, func(sess *session.Session) (session.Snapshot, error) {
		return sess.Next(ctx)
	})
}

func (s *sessionService) Previous(ctx context.Context, attemptID uint, userID string) (*session.Snapshot, error) {
	return s.snapshotOp(ctx, "previous_question", attemptID, userID, func(sess *session.Session) (session.Snapshot, error) {
		return sess.Previous(ctx)
	})
}

func (s *sessionService) JumpTo(ctx context.Context, attemptID uint, index int, userID string) (*session.Snapshot, error) {
	return s.snapshotOp(ctx, "jump_to_question", attemptID, userID, func(sess *session.Session) (session.Snapshot, error) {
		return sess.JumpTo(ctx, index)
	})
}

// ===== RECORDING =====

func (s *sessionService) ReportDevices(ctx context.Context, attemptID uint, req *DeviceReportRequest, userID string) ([]session.Device, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	canPause := req.CanPause == nil || *req.CanPause

	var devices []session.Device
	err := s.withSession(ctx, "report_devices", attemptID, userID, func(sess *session.Session) error {
		if err := sess.ReportDevices(req.Devices, req.PermissionGranted, canPause); err != nil {
			return err
		}
		devices = sess.ListDevices(ctx)
		return nil
	})
	return devices, err
}

func (s *sessionService) captureOp(ctx context.Context, operation string, attemptID uint, userID string, fn func(*session.Session) (session.CaptureSnapshot, error)) (*session.CaptureSnapshot, error) {
	var snap session.CaptureSnapshot
	err := s.withSession(ctx, operation, attemptID, userID, func(sess *session.Session) error {
		var err error
		snap, err = fn(sess)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *sessionService) AcquireStream(ctx context.Context, attemptID uint, req *AcquireStreamRequest, userID string) (*session.CaptureSnapshot, error) {
	return s.captureOp(ctx, "acquire_stream", attemptID, userID, func(sess *session.Session) (session.CaptureSnapshot, error) {
		return sess.AcquireStream(ctx, req.VideoDeviceID, req.AudioDeviceID)
	})
}

func (s *sessionService) Record(ctx context.Context, attemptID uint, action RecordingAction, userID string) (*session.CaptureSnapshot, error) {
	var run func(*session.Session) (session.CaptureSnapshot, error)
	switch action {
	case RecordingStart:
		run = (*session.Session).StartRecording
	case RecordingPause:
		run = (*session.Session).PauseRecording
	case RecordingResume:
		run = (*session.Session).ResumeRecording
	case RecordingStop:
		run = (*session.Session).StopRecording
	case RecordingDiscard:
		run = func(sess *session.Session) (session.CaptureSnapshot, error) {
			return sess.DiscardRecording(ctx)
		}
	default:
		return nil, NewValidationError("action", "unknown recording action", action)
	}
	return s.captureOp(ctx, "recording_"+string(action), attemptID, userID, run)
}

func (s *sessionService) AppendChunk(ctx context.Context, attemptID uint, data []byte, userID string) (*session.CaptureSnapshot, error) {
	return s.captureOp(ctx, "append_chunk", attemptID, userID, func(sess *session.Session) (session.CaptureSnapshot, error) {
		return sess.AppendChunk(data)
	})
}

func (s *sessionService) FailRecording(ctx context.Context, attemptID uint, req *RecordingFailureRequest, userID string) (*session.CaptureSnapshot, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	return s.captureOp(ctx, "recording_failed", attemptID, userID, func(sess *session.Session) (session.CaptureSnapshot, error) {
		return sess.FailRecording(req.Reason)
	})
}

func (s *sessionService) SubmitRecording(ctx context.Context, attemptID uint, userID string) (*session.VideoAnswer, error) {
	var answer session.VideoAnswer
	err := s.withSession(ctx, "submit_recording", attemptID, userID, func(sess *session.Session) error {
		var err error
		answer, err = sess.SubmitRecording(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &answer, nil
}
