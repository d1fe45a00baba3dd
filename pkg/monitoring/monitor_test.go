package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"github.com/SAP-F-2025/assessment-session-service/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var _ session.Metrics = SessionMetrics{}

func TestSessionMetrics(t *testing.T) {
	m := SessionMetrics{}

	before := testutil.ToFloat64(AnswerSaves.WithLabelValues("text", "failed"))
	m.AnswerSaved(models.AnswerText, false)
	assert.Equal(t, before+1, testutil.ToFloat64(AnswerSaves.WithLabelValues("text", "failed")))

	before = testutil.ToFloat64(QuestionExpirations.WithLabelValues("video", "true"))
	m.QuestionExpired(models.QuestionVideo, true)
	assert.Equal(t, before+1, testutil.ToFloat64(QuestionExpirations.WithLabelValues("video", "true")))

	before = testutil.ToFloat64(RecordingUploads.WithLabelValues("network_error"))
	m.RecordingUploaded("network_error")
	assert.Equal(t, before+1, testutil.ToFloat64(RecordingUploads.WithLabelValues("network_error")))
}

func TestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Init()

	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", PrometheusHandler())

	before := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/ping", "204"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/ping", "204")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
