package jobmetrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRunRecordsOutcome(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, metrics.Track("fiscal:range-watch").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("fiscal:range-watch").End(boom), boom)
	skip := fmt.Errorf("%w: shift gone", asynq.SkipRetry)
	require.ErrorIs(t, metrics.Track("fiscal:range-watch").End(skip), asynq.SkipRetry)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("fiscal:range-watch", outcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("fiscal:range-watch", outcomeFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("fiscal:range-watch", outcomeSkipped)))
	require.Positive(t, testutil.ToFloat64(metrics.lastSuccess.WithLabelValues("fiscal:range-watch")))
}

func TestRangeAlerts(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.AddRangeAlerts("low_capacity", 3, 1)
	metrics.AddRangeAlerts("low_capacity", 3, 0)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.alerts.WithLabelValues("low_capacity", "3")))

	var nilMetrics *Metrics
	nilMetrics.AddRangeAlerts("expiring", 1, 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}

func TestDefaultInstanceIsShared(t *testing.T) {
	require.Same(t, NewMetrics(nil), NewMetrics(nil))
}
