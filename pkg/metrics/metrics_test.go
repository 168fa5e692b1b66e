package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersUseOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStage("certificate", "ok")
	m.ObserveStage("certificate", "ok")
	m.ObserveGrant("password", "invalid_grant")
	m.IncrementUsersCreated()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChannelStages.WithLabelValues("certificate", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenGrants.WithLabelValues("password", "invalid_grant")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UsersCreated))

	// a second registry does not collide
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAuthorize("challenge")
		m.ObserveExternalLogin("ok")
	})
}
