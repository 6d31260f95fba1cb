package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("user_id", "u1").WithError(errors.New("boom")).Warn("auth check failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "auth check failed", entry["msg"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "WARN", entry["level"])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warnf("visible %d", 1)
	assert.NotZero(t, buf.Len())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLogLevel("WARNING"))
	assert.Equal(t, ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, InfoLevel, ParseLogLevel("bogus"))
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordDecision("denied", "bad_signature")
	m.RecordDecision("denied", "bad_signature")
	m.RecordDecision("allowed", "")
	m.RecordLogin(true)
	m.RecordLogin(false)
	m.ReuseDetected.Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.AuthDecisions.WithLabelValues("denied", "bad_signature")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuthDecisions.WithLabelValues("allowed", "none")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LoginAttempts.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LoginAttempts.WithLabelValues("failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReuseDetected))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordLogin(true)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "pragati_identity_login_attempts_total")
}

func TestHealthCheckerWithoutDependencies(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	t.Run("liveness", func(t *testing.T) {
		w := httptest.NewRecorder()
		checker.Liveness(w, httptest.NewRequest("GET", "/healthz", nil))
		assert.Equal(t, 200, w.Code)
	})

	t.Run("readiness", func(t *testing.T) {
		w := httptest.NewRecorder()
		checker.Readiness(w, httptest.NewRequest("GET", "/readyz", nil))
		assert.Equal(t, 200, w.Code)

		status := checker.Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Empty(t, status.Dependencies)
	})
}
