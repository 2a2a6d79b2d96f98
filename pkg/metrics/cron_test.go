package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1_770_000_000, 0) }

	m.Record("inventory-reconcile", 250*time.Millisecond, nil)
	m.Record("inventory-reconcile", time.Second, errors.New("db down"))
	m.Record("", time.Millisecond, nil)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory-reconcile", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory-reconcile", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", "success")))
	require.Equal(t, 1_770_000_000.0, testutil.ToFloat64(m.lastSuccess.WithLabelValues("inventory-reconcile")))

	expected := `
# HELP echo_cron_job_last_success_timestamp_seconds Unix time of the last successful run; alert when it goes stale.
# TYPE echo_cron_job_last_success_timestamp_seconds gauge
echo_cron_job_last_success_timestamp_seconds{job="inventory-reconcile"} 1.77e+09
echo_cron_job_last_success_timestamp_seconds{job="unknown"} 1.77e+09
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "echo_cron_job_last_success_timestamp_seconds"))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	hist := findMetricFamily(mfs, "echo_cron_job_duration_seconds")
	require.NotNil(t, hist)
	for _, metric := range hist.GetMetric() {
		if matchesLabel(metric.GetLabel(), "job", "inventory-reconcile") {
			require.Equal(t, uint64(2), metric.GetHistogram().GetSampleCount())
			require.InDelta(t, 1.25, metric.GetHistogram().GetSampleSum(), 1e-9)
		}
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.Record("job", time.Second, nil)
	NewCronJobMetrics(nil).Record("job", time.Second, errors.New("x"))
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
