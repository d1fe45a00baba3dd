package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AnswerSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_answer_saves_total",
			Help: "Answer persistence attempts by answer kind and result",
		},
		[]string{"kind", "result"},
	)

	RecordingUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_recording_uploads_total",
			Help: "Recording uploads by result",
		},
		[]string{"result"},
	)

	QuestionExpirations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_question_expirations_total",
			Help: "Timed questions that ran out, by question type and whether an answer existed",
		},
		[]string{"question_type", "answered"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(AnswerSaves)
		prometheus.MustRegister(RecordingUploads)
		prometheus.MustRegister(QuestionExpirations)
	})
}

// RegisterActiveSessions exposes the number of live sessions as a gauge.
func RegisterActiveSessions(count func() int) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "session_active",
			Help: "Sessions currently hosted by this process",
		},
		func() float64 { return float64(count()) },
	))
}

// SessionMetrics feeds session outcomes into the package counters.
type SessionMetrics struct{}

func (SessionMetrics) AnswerSaved(kind models.AnswerKind, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	AnswerSaves.WithLabelValues(string(kind), result).Inc()
}

func (SessionMetrics) RecordingUploaded(result string) {
	RecordingUploads.WithLabelValues(result).Inc()
}

func (SessionMetrics) QuestionExpired(questionType models.QuestionType, answered bool) {
	QuestionExpirations.WithLabelValues(string(questionType), strconv.FormatBool(answered)).Inc()
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
