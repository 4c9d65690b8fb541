package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCountersIncrement(t *testing.T) {
	Register()

	before := testutil.ToFloat64(staleSnapshots)
	IncStaleSnapshot()
	assert.Equal(t, before+1, testutil.ToFloat64(staleSnapshots))

	before = testutil.ToFloat64(versionConflicts)
	IncVersionConflict()
	IncVersionConflict()
	assert.Equal(t, before+2, testutil.ToFloat64(versionConflicts))

	before = testutil.ToFloat64(tripResyncs)
	IncTripResync()
	assert.Equal(t, before+1, testutil.ToFloat64(tripResyncs))
}

func TestLabelledCounters(t *testing.T) {
	Register()

	IncSyncOp("update_module", "ok")
	assert.Equal(t, float64(1), testutil.ToFloat64(syncOperations.WithLabelValues("update_module", "ok")))

	IncHTTP("trips")
	IncHTTP("trips")
	assert.Equal(t, float64(2), testutil.ToFloat64(httpRequests.WithLabelValues("trips")))
}