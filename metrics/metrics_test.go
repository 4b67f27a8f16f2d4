package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	m.IncRow("accepted")
	m.IncRetry()
	m.IncNested()
	m.IncSaved()
	m.IncSkipped()
	m.IncError("LoginFailed")
	m.SetLastRun(true)
}

func TestCounters(t *testing.T) {
	m := New()

	m.IncRow("accepted")
	m.IncRow("accepted")
	m.IncRow("empty")
	m.IncRetry()
	m.IncSaved()
	m.IncError("RowFailed")
	m.SetLastRun(true)

	require.Equal(t, 2.0, testutil.ToFloat64(m.RowsTotal.WithLabelValues("accepted")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RowsTotal.WithLabelValues("empty")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RowRetries))
	require.Equal(t, 1.0, testutil.ToFloat64(m.FilesSaved))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("RowFailed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.LastRunSuccess))
}
