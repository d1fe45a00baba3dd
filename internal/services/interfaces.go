package services

import (
	"context"
	"strings"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"github.com/SAP-F-2025/assessment-session-service/internal/session"
)

// SessionService hosts the live sessions and routes candidate commands to
// them. Every call checks that userID owns the attempt.
type SessionService interface {
	Start(ctx context.Context, req *StartSessionRequest, userID string) (*session.Snapshot, error)
	Get(ctx context.Context, attemptID uint, userID string) (*session.Snapshot, error)

	SetAnswer(ctx context.Context, attemptID, questionID uint, req *AnswerRequest, userID string) (*session.Snapshot, error)
	Next(ctx context.Context, attemptID uint, userID string) (*session.Snapshot, error)
	Previous(ctx context.Context, attemptID uint, userID string) (*session.Snapshot, error)
	JumpTo(ctx context.Context, attemptID uint, index int, userID string) (*session.Snapshot, error)
	Complete(ctx context.Context, attemptID uint, userID string) (*CompletionResponse, error)
	SaveAndExit(ctx context.Context, attemptID uint, userID string) error

	ReportDevices(ctx context.Context, attemptID uint, req *DeviceReportRequest, userID string) ([]session.Device, error)
	AcquireStream(ctx context.Context, attemptID uint, req *AcquireStreamRequest, userID string) (*session.CaptureSnapshot, error)
	Record(ctx context.Context, attemptID uint, action RecordingAction, userID string) (*session.CaptureSnapshot, error)
	AppendChunk(ctx context.Context, attemptID uint, data []byte, userID string) (*session.CaptureSnapshot, error)
	FailRecording(ctx context.Context, attemptID uint, req *RecordingFailureRequest, userID string) (*session.CaptureSnapshot, error)
	SubmitRecording(ctx context.Context, attemptID uint, userID string) (*session.VideoAnswer, error)

	ActiveSessions() int
	// Shutdown flushes and closes every live session.
	Shutdown(ctx context.Context) error
}

// ExportService renders attempt results as spreadsheets.
type ExportService interface {
	ExportAttempt(ctx context.Context, attemptID uint, userID string) ([]byte, error)
}

// ===== REQUESTS / RESPONSES =====

type StartSessionRequest struct {
	AssessmentID uint `json:"assessment_id" validate:"required,min=1"`
}

// AnswerRequest carries one answer. Only the field matching Kind is read.
type AnswerRequest struct {
	Kind     models.AnswerKind `json:"kind" validate:"required,answer_kind"`
	OptionID *uint             `json:"option_id,omitempty"`
	Text     *string           `json:"text,omitempty" validate:"omitempty,max=20000"`
	Value    *int              `json:"value,omitempty"`
}

// Payload converts the request into a session payload.
func (r *AnswerRequest) Payload() (session.Payload, error) {
	switch r.Kind {
	case models.AnswerChoice:
		if r.OptionID == nil {
			return nil, NewValidationError("option_id", "option_id is required for choice answers", nil)
		}
		return session.ChoiceAnswer{OptionID: *r.OptionID}, nil
	case models.AnswerText:
		if r.Text == nil {
			return nil, NewValidationError("text", "text is required for text answers", nil)
		}
		return session.TextAnswer{Text: strings.ToValidUTF8(*r.Text, "")}, nil
	case models.AnswerRating:
		if r.Value == nil {
			return nil, NewValidationError("value", "value is required for rating answers", nil)
		}
		return session.RatingAnswer{Value: *r.Value}, nil
	case models.AnswerVideo:
		return nil, NewValidationError("kind", "recordings are submitted through the recording upload", r.Kind)
	}
	return nil, ErrUnknownAnswer
}

type DeviceReportRequest struct {
	Devices           []session.Device `json:"devices" validate:"dive"`
	PermissionGranted bool             `json:"permission_granted"`
	// CanPause defaults to true when omitted.
	CanPause *bool `json:"can_pause,omitempty"`
}

type AcquireStreamRequest struct {
	VideoDeviceID string `json:"video_device_id"`
	AudioDeviceID string `json:"audio_device_id"`
}

type RecordingAction string

const (
	RecordingStart   RecordingAction = "start"
	RecordingPause   RecordingAction = "pause"
	RecordingResume  RecordingAction = "resume"
	RecordingStop    RecordingAction = "stop"
	RecordingDiscard RecordingAction = "discard"
)

// RecordingFailureRequest carries a recorder error reported by the browser.
type RecordingFailureRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type CompletionResponse struct {
	AttemptID   uint     `json:"attempt_id"`
	Score       *float64 `json:"score"`
	NeedsReview bool     `json:"needs_review"`
}
