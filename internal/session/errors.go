package session

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrAnswerLocked       = errors.New("answer is locked after the question expired")
	ErrAlreadySeeded      = errors.New("answer store already seeded")
	ErrSessionFinished    = errors.New("session is no longer active")
	ErrNoNextQuestion     = errors.New("already at the last question")
	ErrNoPreviousQuestion = errors.New("already at the first question")
	ErrNotAtLastQuestion  = errors.New("complete is only allowed at the last question")
	ErrJumpDisabled       = errors.New("jumping between questions is disabled")
	ErrIndexOutOfRange    = errors.New("question index out of range")
	ErrNotCurrentQuestion = errors.New("question is not the current question")
	ErrNotRecordable      = errors.New("current question does not accept recordings")
	ErrNoArtifact         = errors.New("no finished recording to submit")
	ErrPayloadMismatch    = errors.New("answer does not fit the question")
	ErrEmptyAssessment    = errors.New("assessment has no questions")
	ErrInvalidDuration    = errors.New("timer duration must be positive")
)

// DeviceError means no usable camera or microphone: enumeration found none,
// the requested device vanished, or the user denied permission.
type DeviceError struct {
	Reason string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device unavailable: %s: %v", e.Reason, e.Err)
	}
	return "device unavailable: " + e.Reason
}

func (e *DeviceError) Unwrap() error { return e.Err }

// RecordingError is a capture failure after the stream was acquired.
type RecordingError struct {
	Reason string
}

func (e *RecordingError) Error() string {
	return "recording failed: " + e.Reason
}

type UploadErrorKind string

const (
	UploadPermissionDenied UploadErrorKind = "PermissionDenied"
	UploadTooLarge         UploadErrorKind = "TooLarge"
	UploadNetworkError     UploadErrorKind = "NetworkError"
	UploadUnknown          UploadErrorKind = "Unknown"
)

type UploadError struct {
	Kind UploadErrorKind
	Err  error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("upload failed (%s)", e.Kind)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PersistenceError is a failed write to the data service.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// GateError blocks forward navigation past a required unanswered question.
type GateError struct {
	QuestionID uint
	Index      int
}

func (e *GateError) Error() string {
	return fmt.Sprintf("question %d at position %d requires an answer", e.QuestionID, e.Index+1)
}
