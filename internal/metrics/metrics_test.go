package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegistered(t *testing.T) {
	// vectors only appear once a label set has been used
	RequestsTotal.WithLabelValues(OutcomeHit)
	BuildDuration.WithLabelValues(ResultSuccess)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, want := range []string{
		"glyphd_requests_total",
		"glyphd_build_duration_seconds",
		"glyphd_builds_in_flight",
		"glyphd_lock_overrides_total",
	} {
		assert.True(t, names[want], want)
	}
}

func TestRequestsTotal(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues(OutcomeLockConflict))
	RequestsTotal.WithLabelValues(OutcomeLockConflict).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues(OutcomeLockConflict)))
}
