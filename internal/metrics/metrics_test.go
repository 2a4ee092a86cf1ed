package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		ObserveSyncDuration(150 * time.Millisecond)
	})

	before := testutil.ToFloat64(syncPasses.WithLabelValues(OutcomeOffline))
	IncSyncPass(OutcomeOffline)
	assert.Equal(t, before+1, testutil.ToFloat64(syncPasses.WithLabelValues(OutcomeOffline)))

	IncReplay("CREATE", ReplayFailed)
	assert.GreaterOrEqual(t, testutil.ToFloat64(replayedActions.WithLabelValues("CREATE", ReplayFailed)), 1.0)

	SetPending(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(pendingActions))

	SetOnline(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(online))
	SetOnline(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(online))
}
