package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pneumodetect/internal/observability/metrics"
)

func TestNewMetricsAreIndependent(t *testing.T) {
	t.Parallel()

	a, err := NewMetrics()
	require.NoError(t, err)
	b, err := NewMetrics()
	require.NoError(t, err, "each instance owns its registry")

	a.Prediction.RecordPrediction("Pneumonia", 0.2)
	assert.Equal(t, 1, testutil.CollectAndCount(a.Registry(), "pneumodetect_predictions_total"))
	assert.Equal(t, 0, testutil.CollectAndCount(b.Registry(), "pneumodetect_predictions_total"))
}

func TestPredictionMetrics(t *testing.T) {
	t.Parallel()
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Prediction.RecordPrediction("Pneumonia", 0.05)
	m.Prediction.RecordPrediction("Pneumonia", 0.07)
	m.Prediction.RecordPrediction("Normal", 0.04)
	m.Prediction.RecordPredictionError("corrupt_image")
	m.Prediction.RecordUploadRejected("invalid_extension")

	expected := `
# HELP pneumodetect_predictions_total Classified images by label
# TYPE pneumodetect_predictions_total counter
pneumodetect_predictions_total{label="Normal"} 1
pneumodetect_predictions_total{label="Pneumonia"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "pneumodetect_predictions_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Registry(), "pneumodetect_prediction_errors_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Registry(), "pneumodetect_uploads_rejected_total"))
}

func TestHTTPMetricsAndHandler(t *testing.T) {
	t.Parallel()
	m, err := NewMetrics()
	require.NoError(t, err)

	m.HTTP.RecordHTTPRequest(http.MethodGet, "/view_result/:id", 404, 0.003)
	m.HTTP.RecordAuthEvent(metrics.AuthLoginFailed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `pneumodetect_http_requests_total{method="GET",path="/view_result/:id",status="404"} 1`)
	assert.Contains(t, text, `pneumodetect_auth_events_total{event="login_failed"} 1`)
	assert.Contains(t, text, "go_goroutines")
}

func TestInferenceDurationHistogram(t *testing.T) {
	t.Parallel()
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Prediction.RecordPrediction("Normal", 0.004)
	m.Prediction.RecordPrediction("Pneumonia", 0.3)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var histogram *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "pneumodetect_inference_duration_seconds" {
			require.Len(t, mf.GetMetric(), 1)
			histogram = mf.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, histogram, "histogram not registered")
	assert.Equal(t, uint64(2), histogram.GetSampleCount())
	assert.InDelta(t, 0.304, histogram.GetSampleSum(), 1e-9)
}
