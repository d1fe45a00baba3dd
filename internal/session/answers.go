package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
)

type SaveStatus string

const (
	SaveStatusSaved   SaveStatus = "saved"
	SaveStatusSaving  SaveStatus = "saving"
	SaveStatusUnsaved SaveStatus = "unsaved"
)

const (
	DefaultTextDebounce = 800 * time.Millisecond
	backgroundSaveLimit = 15 * time.Second
)

// AnswerWriter upserts one answer keyed by (attempt, question).
type AnswerWriter interface {
	Upsert(ctx context.Context, answer *models.Answer) error
}

// AnswerStore is the authoritative in-memory view of an attempt's answers.
// Discrete answers are written through immediately; text is debounced. Per
// question, writes are serialized and always send the newest value, so the
// last SetAnswer wins regardless of completion order.
type AnswerStore struct {
	mu        sync.Mutex
	attemptID uint
	writer    AnswerWriter
	clock     Clock
	debounce  time.Duration
	logger    *slog.Logger
	metrics   Metrics
	entries   map[uint]*answerEntry
	seeded    bool
}

type answerEntry struct {
	write sync.Mutex

	payload       Payload
	answeredAt    time.Time
	autoSubmitted bool
	locked        bool

	// seq counts edits; persisted is the newest seq known to be stored.
	seq       uint64
	persisted uint64
	pending   Stopper
	inflight  int
}

type AnswerStoreConfig struct {
	AttemptID uint
	Writer    AnswerWriter
	Clock     Clock
	Debounce  time.Duration
	Logger    *slog.Logger
	Metrics   Metrics
}

func NewAnswerStore(cfg AnswerStoreConfig) *AnswerStore {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	return &AnswerStore{
		attemptID: cfg.AttemptID,
		writer:    cfg.Writer,
		clock:     cfg.Clock,
		debounce:  cfg.Debounce,
		logger:    cfg.Logger.With("attempt_id", cfg.AttemptID),
		metrics:   cfg.Metrics,
		entries:   make(map[uint]*answerEntry),
	}
}

// Seed loads previously stored answers. It may only run once, before any edit.
// Answers that were auto-submitted on expiry come back locked.
func (s *AnswerStore) Seed(answers []*models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seeded {
		return ErrAlreadySeeded
	}
	s.seeded = true

	for _, a := range answers {
		p, err := DecodePayload(a.Kind, a.Payload)
		if err != nil {
			s.logger.Warn("Skipping stored answer that cannot be decoded",
				"question_id", a.QuestionID, "error", err)
			continue
		}
		s.entries[a.QuestionID] = &answerEntry{
			payload:       p,
			answeredAt:    a.AnsweredAt,
			autoSubmitted: a.AutoSubmitted,
			locked:        a.AutoSubmitted,
		}
	}
	return nil
}

func (s *AnswerStore) entry(questionID uint) *answerEntry {
	e, ok := s.entries[questionID]
	if !ok {
		e = &answerEntry{}
		s.entries[questionID] = e
	}
	return e
}

// SetAnswer replaces the in-memory answer and schedules its persistence.
// Persistence failures never surface here; they show up in SaveStatus.
func (s *AnswerStore) SetAnswer(ctx context.Context, questionID uint, p Payload) error {
	if p == nil {
		return ErrPayloadMismatch
	}

	s.mu.Lock()
	s.seeded = true
	e := s.entry(questionID)
	if e.locked {
		s.mu.Unlock()
		return ErrAnswerLocked
	}
	e.payload = p
	e.answeredAt = s.clock.Now()
	e.seq++
	stopPending(e)

	if _, isText := p.(TextAnswer); isText && s.debounce > 0 {
		e.pending = s.clock.AfterFunc(s.debounce, func() { s.debounced(questionID) })
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	_ = s.persist(ctx, questionID)
	return nil
}

func stopPending(e *answerEntry) {
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
}

func (s *AnswerStore) debounced(questionID uint) {
	s.mu.Lock()
	if e, ok := s.entries[questionID]; ok {
		e.pending = nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), backgroundSaveLimit)
	defer cancel()
	_ = s.persist(ctx, questionID)
}

// persist writes the newest value of one question if it is not stored yet.
func (s *AnswerStore) persist(ctx context.Context, questionID uint) error {
	s.mu.Lock()
	e, ok := s.entries[questionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	e.write.Lock()
	defer e.write.Unlock()

	s.mu.Lock()
	if e.persisted >= e.seq || e.payload == nil {
		s.mu.Unlock()
		return nil
	}
	payload, seq := e.payload, e.seq
	answer := &models.Answer{
		AttemptID:     s.attemptID,
		QuestionID:    questionID,
		AutoSubmitted: e.autoSubmitted,
		AnsweredAt:    e.answeredAt,
	}
	e.inflight++
	s.mu.Unlock()

	kind, raw, err := EncodePayload(payload)
	if err == nil {
		answer.Kind, answer.Payload = kind, raw
		err = s.writer.Upsert(ctx, answer)
	}

	s.mu.Lock()
	e.inflight--
	if err == nil && seq > e.persisted {
		e.persisted = seq
	}
	s.mu.Unlock()

	s.metrics.AnswerSaved(payload.Kind(), err == nil)
	if err != nil {
		s.logger.Error("Failed to persist answer",
			"question_id", questionID,
			"kind", payload.Kind(),
			"error", err)
		return &PersistenceError{Op: "save answer", Err: err}
	}
	return nil
}

// FlushQuestion persists any pending edit of one question now.
func (s *AnswerStore) FlushQuestion(ctx context.Context, questionID uint) error {
	s.mu.Lock()
	if e, ok := s.entries[questionID]; ok {
		stopPending(e)
	}
	s.mu.Unlock()
	return s.persist(ctx, questionID)
}

// Flush persists every pending or previously failed write synchronously.
func (s *AnswerStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]uint, 0, len(s.entries))
	for id, e := range s.entries {
		stopPending(e)
		if e.persisted < e.seq {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := s.persist(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Lock freezes a question's answer. Only AutoSubmit can write it afterwards.
func (s *AnswerStore) Lock(questionID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(questionID).locked = true
}

func (s *AnswerStore) IsLocked(questionID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[questionID]
	return ok && e.locked
}

// AutoSubmit finalizes a question on expiry. A nil p keeps the current
// draft. The question is locked either way; the returned payload is nil
// when nothing was answered.
func (s *AnswerStore) AutoSubmit(ctx context.Context, questionID uint, p Payload) (Payload, error) {
	s.mu.Lock()
	e := s.entry(questionID)
	e.locked = true
	stopPending(e)
	if p != nil {
		e.payload = p
		e.answeredAt = s.clock.Now()
	}
	current := e.payload
	if current != nil {
		e.autoSubmitted = true
		e.seq++
	}
	s.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	return current, s.persist(ctx, questionID)
}

// Answer returns the in-memory answer, seeded from storage at load.
func (s *AnswerStore) Answer(questionID uint) (Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[questionID]
	if !ok || e.payload == nil {
		return nil, false
	}
	return e.payload, true
}

// Answers returns a copy of every known answer.
func (s *AnswerStore) Answers() map[uint]Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint]Payload, len(s.entries))
	for id, e := range s.entries {
		if e.payload != nil {
			out[id] = e.payload
		}
	}
	return out
}

func (s *AnswerStore) SaveStatus() SaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SaveStatusSaved
	for _, e := range s.entries {
		busy := e.pending != nil || e.inflight > 0
		switch {
		case e.persisted < e.seq && !busy:
			return SaveStatusUnsaved
		case busy:
			status = SaveStatusSaving
		}
	}
	return status
}

// Close cancels pending debounced writes without running them.
func (s *AnswerStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		stopPending(e)
	}
}
