package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	tokensIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_tokens_issued_total",
		Help: "Session tokens issued by class.",
	}, []string{"type"})

	sessionValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_session_validations_total",
		Help: "Session token validations by class and result.",
	}, []string{"type", "result"})

	encryptionKeysIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_encryption_keys_issued_total",
		Help: "Ephemeral password encryption keys issued.",
	})

	gatekeeperRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_gatekeeper_rejections_total",
		Help: "Requests rejected by the gatekeeper by reason.",
	}, []string{"reason"})
)

// Validation results recorded by RecordSessionValidation.
const (
	ValidationValid       = "valid"
	ValidationInvalid     = "invalid"
	ValidationNotLive     = "not_live"
	ValidationStoreFailed = "store_error"
)

// PrometheusMiddleware records request counts and latency per route template.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordTokenIssued counts one issued token of the given class.
func RecordTokenIssued(tokenType string) {
	tokensIssuedTotal.WithLabelValues(tokenType).Inc()
}

// RecordSessionValidation counts one validation outcome.
func RecordSessionValidation(tokenType, result string) {
	sessionValidationsTotal.WithLabelValues(tokenType, result).Inc()
}

// RecordEncryptionKeyIssued counts one ephemeral key.
func RecordEncryptionKeyIssued() {
	encryptionKeysIssuedTotal.Inc()
}

func recordGatekeeperRejection(reason string) {
	gatekeeperRejectionsTotal.WithLabelValues(reason).Inc()
}
