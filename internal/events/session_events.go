package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the kinds of session lifecycle events
type EventType string

const (
	EventAttemptStarted     EventType = "attempt.started"
	EventAttemptResumed     EventType = "attempt.resumed"
	EventAttemptSavedExited EventType = "attempt.saved_exited"
	EventAttemptCompleted   EventType = "attempt.completed"

	EventQuestionExpired   EventType = "question.expired"
	EventRecordingUploaded EventType = "recording.uploaded"
)

const (
	eventSource  = "assessment-session-service"
	eventVersion = "1.0"
)

// SessionEvent is the envelope for every event this service emits
type SessionEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	AttemptID uint                   `json:"attempt_id"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewSessionEvent wraps data in an envelope with a fresh ID.
func NewSessionEvent(eventType EventType, attemptID uint, data interface{}) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		AttemptID: attemptID,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
}

// WithMetadata sets a metadata key and returns the event for chaining
func (e *SessionEvent) WithMetadata(key string, value interface{}) *SessionEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Attempt event payloads

type AttemptStartedEvent struct {
	AttemptID     uint      `json:"attempt_id"`
	AssessmentID  uint      `json:"assessment_id"`
	UserID        string    `json:"user_id"`
	StartedAt     time.Time `json:"started_at"`
	QuestionCount int       `json:"question_count"`
}

type AttemptResumedEvent struct {
	AttemptID     uint   `json:"attempt_id"`
	AssessmentID  uint   `json:"assessment_id"`
	UserID        string `json:"user_id"`
	QuestionIndex int    `json:"question_index"`
}

type AttemptSavedExitedEvent struct {
	AttemptID     uint   `json:"attempt_id"`
	AssessmentID  uint   `json:"assessment_id"`
	UserID        string `json:"user_id"`
	QuestionIndex int    `json:"question_index"`
	Answered      int    `json:"answered"`
	Total         int    `json:"total"`
}

type AttemptCompletedEvent struct {
	AttemptID    uint      `json:"attempt_id"`
	AssessmentID uint      `json:"assessment_id"`
	UserID       string    `json:"user_id"`
	CompletedAt  time.Time `json:"completed_at"`
	Score        *float64  `json:"score,omitempty"`
	NeedsReview  bool      `json:"needs_review"`
	Flagged      []uint    `json:"flagged_questions,omitempty"`
}

// Question and recording payloads

type QuestionExpiredEvent struct {
	AttemptID     uint   `json:"attempt_id"`
	QuestionID    uint   `json:"question_id"`
	QuestionIndex int    `json:"question_index"`
	Answered      bool   `json:"answered"`
	UserID        string `json:"user_id"`
}

type RecordingUploadedEvent struct {
	AttemptID       uint    `json:"attempt_id"`
	QuestionID      uint    `json:"question_id"`
	UserID          string  `json:"user_id"`
	StorageKey      string  `json:"storage_key"`
	URL             string  `json:"url"`
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
}
