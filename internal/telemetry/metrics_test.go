package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInitMetrics_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		InitMetrics()
		InitMetrics()
	})
}

func TestProbesTotal(t *testing.T) {
	before := testutil.ToFloat64(ProbesTotal.WithLabelValues("single", "online"))
	ProbesTotal.WithLabelValues("single", "online").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ProbesTotal.WithLabelValues("single", "online")))
}
