package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePhase(t *testing.T) {
	t.Parallel()
	m := New()

	m.ObservePhase("topology", 2*time.Second, nil)
	m.ObservePhase("instances", time.Second, errors.New("boom"))
	m.ObservePhase("instances", time.Second, errors.New("boom"))

	assert.Equal(t, float64(0), testutil.ToFloat64(m.phaseFailures.WithLabelValues("topology")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.phaseFailures.WithLabelValues("instances")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.phaseDuration))
}

func TestCounters(t *testing.T) {
	t.Parallel()
	m := New()

	m.InstancesLaunched("worker", 3)
	m.InstancesLaunched("worker", 0)
	m.ComponentsLaunched(ResultLaunched, 2)
	m.ComponentsLaunched(ResultTimeout, 1)
	m.ObserveWait("instances", 30*time.Second)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.instancesLaunched.WithLabelValues("worker")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.componentsLaunched.WithLabelValues(ResultLaunched)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.componentsLaunched.WithLabelValues(ResultTimeout)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.convergenceWait))
}

func TestRegistryGathers(t *testing.T) {
	t.Parallel()
	m := New()
	m.InstancesLaunched("nat", 1)

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "clusterous_instances_launched_total")
	assert.Contains(t, names, "go_goroutines")
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObservePhase("x", time.Second, errors.New("boom"))
		m.ObserveWait("x", time.Second)
		m.InstancesLaunched("x", 1)
		m.ComponentsLaunched(ResultFailed, 1)
	})
}
