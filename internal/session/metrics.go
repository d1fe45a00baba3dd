package session

import "github.com/SAP-F-2025/assessment-session-service/internal/models"

// Metrics receives session outcomes for monitoring.
type Metrics interface {
	AnswerSaved(kind models.AnswerKind, ok bool)
	RecordingUploaded(result string)
	QuestionExpired(questionType models.QuestionType, answered bool)
}

type NopMetrics struct{}

func (NopMetrics) AnswerSaved(models.AnswerKind, bool)       {}
func (NopMetrics) RecordingUploaded(string)                  {}
func (NopMetrics) QuestionExpired(models.QuestionType, bool) {}
