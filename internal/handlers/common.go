package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SAP-F-2025/assessment-session-service/internal/services"
	"github.com/SAP-F-2025/assessment-session-service/internal/session"
	"github.com/SAP-F-2025/assessment-session-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

func (h *BaseHandler) requestFields(c *gin.Context, additionalFields ...interface{}) []interface{} {
	fields := []interface{}{
		"request_id", utils.RequestIDFromContext(c.Request.Context()),
		"user_id", c.GetString("user_id"),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}
	return append(fields, additionalFields...)
}

func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	h.logger.Debug(message, h.requestFields(c, additionalFields...)...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	h.logger.LogError(err, message, h.requestFields(c, additionalFields...)...)
}

func (h *BaseHandler) LogInfo(c *gin.Context, message string, additionalFields ...interface{}) {
	h.logger.Info(message, h.requestFields(c, additionalFields...)...)
}

// currentUser returns the authenticated user ID or writes a 401.
func (h *BaseHandler) currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}
	return userID, true
}

// parseIDParam parses a positive integer path parameter or writes a 400.
func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "ID must be a positive integer",
		})
		return 0
	}
	return uint(id)
}

// handleServiceError maps service and session errors to HTTP responses.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var validationError *services.ValidationError
	if errors.As(err, &validationError) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: []services.ValidationError{*validationError},
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	var gateError *session.GateError
	if errors.As(err, &gateError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Current question must be answered first",
			Code:    "answer_required",
			Details: map[string]interface{}{
				"question_id": gateError.QuestionID,
				"index":       gateError.Index,
			},
		})
		return
	}

	var deviceError *session.DeviceError
	if errors.As(err, &deviceError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: deviceError.Error(),
			Code:    "device_error",
		})
		return
	}

	var recordingError *session.RecordingError
	if errors.As(err, &recordingError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: recordingError.Error(),
			Code:    "recording_error",
		})
		return
	}

	var uploadError *session.UploadError
	if errors.As(err, &uploadError) {
		status := http.StatusBadGateway
		switch uploadError.Kind {
		case session.UploadTooLarge:
			status = http.StatusRequestEntityTooLarge
		case session.UploadNetworkError:
			status = http.StatusServiceUnavailable
		}
		h.LogError(c, err, "Recording upload failed", "kind", uploadError.Kind)
		c.JSON(status, ErrorResponse{
			Message: "Recording upload failed",
			Code:    "upload_" + string(uploadError.Kind),
		})
		return
	}

	var persistenceError *session.PersistenceError
	if errors.As(err, &persistenceError) {
		h.LogError(c, err, "Session persistence failed", "op", persistenceError.Op)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Message: "Could not save progress, please retry",
			Code:    "persistence_error",
		})
		return
	}

	switch {
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: err.Error(),
		})
	case services.IsUnauthorized(err):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Forbidden - insufficient permissions",
		})
	case services.IsValidation(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
	case services.IsConflict(err):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: err.Error(),
		})
	case services.IsBusinessRule(err):
		var businessRuleError *services.BusinessRuleError
		if errors.As(err, &businessRuleError) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Message: businessRuleError.Message,
				Details: map[string]interface{}{
					"rule":    businessRuleError.Rule,
					"context": businessRuleError.Context,
				},
			})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: err.Error(),
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
