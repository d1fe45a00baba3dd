package services

import (
	"fmt"
	"testing"

	"github.com/SAP-F-2025/assessment-session-service/internal/session"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		notFound     bool
		unauthorized bool
		validation   bool
		businessRule bool
		conflict     bool
	}{
		{name: "attempt missing", err: ErrAttemptNotFound, notFound: true},
		{name: "wrapped session missing", err: fmt.Errorf("lookup: %w", ErrSessionNotFound), notFound: true},
		{name: "permission", err: NewPermissionError("u", 1, "attempt", "access", "owner mismatch"), unauthorized: true},
		{name: "payload mismatch", err: fmt.Errorf("set: %w", session.ErrPayloadMismatch), validation: true},
		{name: "validation error", err: NewValidationError("text", "too long", nil), validation: true},
		{name: "gate", err: &session.GateError{QuestionID: 4, Index: 2}, businessRule: true},
		{name: "jump disabled", err: session.ErrJumpDisabled, businessRule: true},
		{name: "rule", err: NewBusinessRuleError("single_open_attempt", "already open", nil), businessRule: true},
		{name: "finished", err: session.ErrSessionFinished, conflict: true},
		{name: "locked", err: session.ErrAnswerLocked, conflict: true},
		{name: "completed", err: ErrAttemptCompleted, conflict: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFound(tt.err), "IsNotFound")
			assert.Equal(t, tt.unauthorized, IsUnauthorized(tt.err), "IsUnauthorized")
			assert.Equal(t, tt.validation, IsValidation(tt.err), "IsValidation")
			assert.Equal(t, tt.businessRule, IsBusinessRule(tt.err), "IsBusinessRule")
			assert.Equal(t, tt.conflict, IsConflict(tt.err), "IsConflict")
		})
	}
}
