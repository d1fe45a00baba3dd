package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/assessment-session-service/internal/errors"
	"github.com/SAP-F-2025/assessment-session-service/internal/session"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("resource conflict")

	// Assessment specific errors
	ErrAssessmentNotFound  = errors.New("assessment not found")
	ErrAssessmentNotActive = errors.New("assessment is not active")

	// Attempt specific errors
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrAttemptAccessDenied = errors.New("access denied to attempt")
	ErrAttemptCompleted    = errors.New("attempt already completed")

	// Session specific errors
	ErrSessionNotFound = errors.New("no live session for attempt")
	ErrUnknownAnswer   = errors.New("unknown answer kind")
)

// ===== CUSTOM ERROR TYPES =====

type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

func (pe *PermissionError) Unwrap() error { return ErrAttemptAccessDenied }

// ===== ERROR HELPERS =====

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAssessmentNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrAttemptAccessDenied)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrUnknownAnswer) ||
		errors.Is(err, session.ErrPayloadMismatch) ||
		errors.Is(err, session.ErrIndexOutOfRange) ||
		errors.Is(err, session.ErrNotCurrentQuestion) {
		return true
	}
	var ve apperrors.ValidationErrors
	if errors.As(err, &ve) {
		return true
	}
	var single *apperrors.ValidationError
	return errors.As(err, &single)
}

// IsBusinessRule checks if error represents a business rule violation.
// Session state machine refusals count as rule violations.
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	if errors.As(err, &bre) {
		return true
	}
	var gate *session.GateError
	if errors.As(err, &gate) {
		return true
	}
	return errors.Is(err, session.ErrInvalidTransition) ||
		errors.Is(err, session.ErrNoNextQuestion) ||
		errors.Is(err, session.ErrNoPreviousQuestion) ||
		errors.Is(err, session.ErrNotAtLastQuestion) ||
		errors.Is(err, session.ErrJumpDisabled) ||
		errors.Is(err, session.ErrNotRecordable) ||
		errors.Is(err, session.ErrNoArtifact) ||
		errors.Is(err, session.ErrEmptyAssessment) ||
		errors.Is(err, ErrAssessmentNotActive)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAttemptCompleted) ||
		errors.Is(err, session.ErrSessionFinished) ||
		errors.Is(err, session.ErrAnswerLocked)
}
