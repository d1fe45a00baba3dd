package session

import (
	"context"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
)

func recordable(q *models.Question) bool {
	return q.Type == models.QuestionVideo || q.Type == models.QuestionScenario
}

// requireRecorder checks the current question takes recordings and is
// still editable. Caller holds s.mu.
func (s *Session) requireRecorder() (*models.Question, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	q := s.nav.Current()
	if !recordable(q) {
		return nil, ErrNotRecordable
	}
	if s.answers.IsLocked(q.ID) {
		return nil, ErrAnswerLocked
	}
	return q, nil
}

// ReportDevices stores what the client enumerated. Only relay providers
// accept reports.
func (s *Session) ReportDevices(devices []Device, permissionGranted, canPause bool) error {
	relay, ok := s.devices.(*RelayDevices)
	if !ok {
		return ErrInvalidTransition
	}
	relay.Report(devices, permissionGranted, canPause)
	return nil
}

func (s *Session) ListDevices(ctx context.Context) []Device {
	return s.capture.EnumerateDevices(ctx)
}

func (s *Session) AcquireStream(ctx context.Context, videoID, audioID string) (CaptureSnapshot, error) {
	return s.withRecorder(func(*models.Question) error {
		return s.capture.AcquireStream(ctx, videoID, audioID)
	})
}

func (s *Session) StartRecording() (CaptureSnapshot, error) {
	return s.withRecorder(func(*models.Question) error { return s.capture.StartRecording() })
}

func (s *Session) PauseRecording() (CaptureSnapshot, error) {
	return s.withRecorder(func(*models.Question) error { return s.capture.Pause() })
}

func (s *Session) ResumeRecording() (CaptureSnapshot, error) {
	return s.withRecorder(func(*models.Question) error { return s.capture.Resume() })
}

func (s *Session) AppendChunk(data []byte) (CaptureSnapshot, error) {
	return s.withRecorder(func(*models.Question) error { return s.capture.AppendChunk(data) })
}

// StopRecording is a no-op unless recording or paused.
func (s *Session) StopRecording() (CaptureSnapshot, error) {
	return s.withRecorder(func(*models.Question) error {
		s.capture.StopRecording()
		return nil
	})
}

func (s *Session) DiscardRecording(ctx context.Context) (CaptureSnapshot, error) {
	return s.withRecorder(func(*models.Question) error { return s.capture.DiscardAndRestart(ctx) })
}

// FailRecording reports a client-side capture failure.
func (s *Session) FailRecording(reason string) (CaptureSnapshot, error) {
	return s.withRecorder(func(*models.Question) error {
		s.capture.Fail(reason)
		return nil
	})
}

func (s *Session) withRecorder(op func(q *models.Question) error) (CaptureSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.requireRecorder()
	if err != nil {
		return s.capture.Snapshot(), err
	}
	err = op(q)
	return s.capture.Snapshot(), err
}

// SubmitRecording uploads the finished recording and stores it as the
// answer. On upload failure the recording is kept so the candidate can
// retry. A replaced recording is removed from storage.
func (s *Session) SubmitRecording(ctx context.Context) (VideoAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return VideoAnswer{}, err
	}
	s.settleExpiry(ctx)
	q, err := s.requireRecorder()
	if err != nil {
		return VideoAnswer{}, err
	}

	artifact := s.capture.StopRecording()
	if artifact == nil {
		artifact = s.capture.Artifact()
	}
	if artifact == nil || artifact.Size == 0 {
		return VideoAnswer{}, ErrNoArtifact
	}

	answer, err := s.uploadArtifact(ctx, q, artifact)
	if err != nil {
		return VideoAnswer{}, err
	}

	previous, _ := s.answers.Answer(q.ID)
	if err := s.answers.SetAnswer(ctx, q.ID, answer); err != nil {
		return VideoAnswer{}, err
	}
	s.capture.Close()

	if old, ok := previous.(VideoAnswer); ok && old.StorageKey != answer.StorageKey {
		if err := s.uploader.Remove(ctx, old.StorageKey); err != nil {
			s.logger.Warn("Failed to remove replaced recording", "storage_key", old.StorageKey, "error", err)
		}
	}
	return answer, nil
}
