package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/SAP-F-2025/assessment-session-service/internal/services"
	"github.com/SAP-F-2025/assessment-session-service/internal/session"
	"github.com/SAP-F-2025/assessment-session-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// DefaultMaxChunkBytes caps one recording chunk request.
const DefaultMaxChunkBytes int64 = 8 << 20

type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
	maxChunkBytes  int64
}

func NewSessionHandler(sessionService services.SessionService, maxChunkBytes int64, logger utils.Logger) *SessionHandler {
	if maxChunkBytes <= 0 {
		maxChunkBytes = DefaultMaxChunkBytes
	}
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		maxChunkBytes:  maxChunkBytes,
	}
}

// StartSession starts or resumes the caller's attempt
// @Summary Start or resume a session
// @Description Opens the caller's attempt for an assessment, creating it on first start
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body services.StartSessionRequest true "Assessment to take"
// @Success 200 {object} session.Snapshot
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req services.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting session", "assessment_id", req.AssessmentID)

	snap, err := h.sessionService.Start(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// GetSession returns the current state snapshot
// @Summary Get session state
// @Tags sessions
// @Produce json
// @Param attempt_id path uint true "Attempt ID"
// @Success 200 {object} session.Snapshot
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{attempt_id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	snap, err := h.sessionService.Get(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// SetAnswer stores the answer to the current question
// @Summary Set answer
// @Description Choice, rating and video answers are saved immediately; text is saved after a short pause in typing
// @Tags sessions
// @Accept json
// @Produce json
// @Param attempt_id path uint true "Attempt ID"
// @Param question_id path uint true "Question ID"
// @Param request body services.AnswerRequest true "Answer"
// @Success 200 {object} session.Snapshot
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{attempt_id}/answers/{question_id} [put]
func (h *SessionHandler) SetAnswer(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	var req services.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	snap, err := h.sessionService.SetAnswer(c.Request.Context(), attemptID, questionID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

type snapshotCall func(c *gin.Context, attemptID uint, userID string) (*session.Snapshot, error)

func (h *SessionHandler) snapshotRoute(call snapshotCall) gin.HandlerFunc {
	return func(c *gin.Context) {
		attemptID := h.parseIDParam(c, "attempt_id")
		if attemptID == 0 {
			return
		}
		userID, ok := h.currentUser(c)
		if !ok {
			return
		}

		snap, err := call(c, attemptID, userID)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

// Next moves forward when the current question allows it.
func (h *SessionHandler) Next(c *gin.Context) {
	h.snapshotRoute(func(c *gin.Context, attemptID uint, userID string) (*session.Snapshot, error) {
		return h.sessionService.Next(c.Request.Context(), attemptID, userID)
	})(c)
}

func (h *SessionHandler) Previous(c *gin.Context) {
	h.snapshotRoute(func(c *gin.Context, attemptID uint, userID string) (*session.Snapshot, error) {
		return h.sessionService.Previous(c.Request.Context(), attemptID, userID)
	})(c)
}

// JumpTo is only routed outside production.
func (h *SessionHandler) JumpTo(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid index",
			Details: err.Error(),
		})
		return
	}
	h.snapshotRoute(func(c *gin.Context, attemptID uint, userID string) (*session.Snapshot, error) {
		return h.sessionService.JumpTo(c.Request.Context(), attemptID, index, userID)
	})(c)
}

// Complete finalizes the attempt
// @Summary Complete attempt
// @Description Saves outstanding answers, scores choice questions and closes the attempt
// @Tags sessions
// @Produce json
// @Param attempt_id path uint true "Attempt ID"
// @Success 200 {object} services.CompletionResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /sessions/{attempt_id}/complete [post]
func (h *SessionHandler) Complete(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	result, err := h.sessionService.Complete(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Attempt completed", "attempt_id", attemptID, "needs_review", result.NeedsReview)
	c.JSON(http.StatusOK, result)
}

func (h *SessionHandler) SaveAndExit(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	if err := h.sessionService.SaveAndExit(c.Request.Context(), attemptID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Progress saved"})
}

// ReportDevices records the browser's camera and microphone list.
func (h *SessionHandler) ReportDevices(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}

	var req services.DeviceReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	devices, err := h.sessionService.ReportDevices(c.Request.Context(), attemptID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (h *SessionHandler) AcquireStream(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}

	var req services.AcquireStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	capture, err := h.sessionService.AcquireStream(c.Request.Context(), attemptID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, capture)
}

// Record returns a handler driving the recorder with one action.
func (h *SessionHandler) Record(action services.RecordingAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		attemptID := h.parseIDParam(c, "attempt_id")
		if attemptID == 0 {
			return
		}
		userID, ok := h.currentUser(c)
		if !ok {
			return
		}

		capture, err := h.sessionService.Record(c.Request.Context(), attemptID, action, userID)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, capture)
	}
}

// AppendChunk buffers one raw media chunk from the browser recorder.
func (h *SessionHandler) AppendChunk(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxChunkBytes)
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Message: "Chunk too large",
			Details: err.Error(),
		})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Empty chunk",
		})
		return
	}

	capture, err := h.sessionService.AppendChunk(c.Request.Context(), attemptID, data, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, capture)
}

// FailRecording records a recorder error reported by the browser.
func (h *SessionHandler) FailRecording(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}

	var req services.RecordingFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	capture, err := h.sessionService.FailRecording(c.Request.Context(), attemptID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Recording failed on client", "attempt_id", attemptID, "reason", req.Reason)
	c.JSON(http.StatusOK, capture)
}

// UploadRecording submits the finished recording
// @Summary Upload recording
// @Description Uploads the stopped recording to object storage and stores it as the answer
// @Tags sessions
// @Produce json
// @Param attempt_id path uint true "Attempt ID"
// @Success 201 {object} session.VideoAnswer
// @Failure 413 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /sessions/{attempt_id}/recording/upload [post]
func (h *SessionHandler) UploadRecording(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	answer, err := h.sessionService.SubmitRecording(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Recording uploaded", "attempt_id", attemptID, "storage_key", answer.StorageKey)
	c.JSON(http.StatusCreated, answer)
}
