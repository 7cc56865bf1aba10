package environment

import (
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/marathon"
)

type logSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *logSink) logger() logr.Logger {
	return funcr.New(func(_, args string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.lines = append(s.lines, args)
	}, funcr.Options{Verbosity: 1})
}

func (s *logSink) contains(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func autoCPU(machine string, count int) Component {
	return Component{Machine: machine, CPU: Amount{Auto: true}, Count: Amount{Value: float64(count)}}
}

func autoCount(machine string, cpu float64) Component {
	return Component{Machine: machine, CPU: Amount{Value: cpu}, Count: Amount{Auto: true}}
}

func named(comps map[string]Component) map[string]Component {
	for name, c := range comps {
		c.Name = name
		comps[name] = c
	}
	return comps
}

func TestCalculate_AutoCPU(t *testing.T) {
	t.Parallel()
	pool := NodePool{"worker": {Nodes: 2, CPUPerNode: 4, MemPerNode: 8000}}

	allocs, err := Calculate(pool, named(map[string]Component{
		"engine":  autoCPU("worker", 6),
		"monitor": autoCPU("worker", 2),
	}), logr.Discard())
	require.NoError(t, err)

	assert.Equal(t, Allocation{Machine: "worker", CPU: 2, Mem: 4000, Instances: 6}, allocs["engine"])
	assert.Equal(t, Allocation{Machine: "worker", CPU: 2, Mem: 4000, Instances: 2}, allocs["monitor"])
}

func TestCalculate_AutoCount(t *testing.T) {
	t.Parallel()
	pool := NodePool{"worker": {Nodes: 2, CPUPerNode: 1.0, MemPerNode: 1000}}
	sink := &logSink{}

	allocs, err := Calculate(pool, named(map[string]Component{"engine": autoCount("worker", 0.4)}), sink.logger())
	require.NoError(t, err)

	got := allocs["engine"]
	assert.Equal(t, 4, got.Instances)
	assert.InDelta(t, 0.4, got.CPU, 1e-9)
	assert.InDelta(t, 400, got.Mem, 1e-9)
	assert.True(t, sink.contains(`"component"="engine"`), "unused cpu should be reported")
}

func TestCalculate_AutoCountExactFit(t *testing.T) {
	t.Parallel()
	pool := NodePool{"worker": {Nodes: 3, CPUPerNode: 1.2, MemPerNode: 1200}}
	sink := &logSink{}

	allocs, err := Calculate(pool, named(map[string]Component{"engine": autoCount("worker", 0.4)}), sink.logger())
	require.NoError(t, err)

	assert.Equal(t, 9, allocs["engine"].Instances)
	assert.False(t, sink.contains("unused"))
}

func TestCalculate_NeverOverAllocatesNode(t *testing.T) {
	t.Parallel()
	for _, cpu := range []float64{0.1, 0.25, 0.3, 0.7, 1, 1.5, 2, 3.9, 4} {
		pool := NodePool{"worker": {Nodes: 2, CPUPerNode: 4, MemPerNode: 4096}}
		allocs, err := Calculate(pool, named(map[string]Component{"c": autoCount("worker", cpu)}), logr.Discard())
		require.NoError(t, err)
		perNode := allocs["c"].Instances / 2
		assert.LessOrEqual(t, float64(perNode)*cpu, 4.0+1e-9, "cpu %g", cpu)
		assert.GreaterOrEqual(t, perNode, 1)
	}
}

func TestCalculate_Rejects(t *testing.T) {
	t.Parallel()
	pool := NodePool{
		"worker": {Nodes: 2, CPUPerNode: 1, MemPerNode: 1000},
		"master": {Nodes: 1, CPUPerNode: 2, MemPerNode: 2000},
	}
	tests := []struct {
		name  string
		comps map[string]Component
		want  string
	}{
		{"unknown machine", map[string]Component{"a": autoCPU("gpu", 1)}, `machine "gpu" does not match any in cluster`},
		{"both auto", map[string]Component{"a": {Machine: "worker", CPU: Amount{Auto: true}, Count: Amount{Auto: true}}}, "both cpu and count"},
		{"neither auto", map[string]Component{"a": {Machine: "worker", CPU: Amount{Value: 1}, Count: Amount{Value: 2}}}, "cpu is explicitly set to 1 and count to 2"},
		{"mixed modes", map[string]Component{"a": autoCPU("worker", 1), "b": autoCount("worker", 0.5)}, "cannot mix"},
		{"cpu above node", map[string]Component{"a": autoCount("worker", 1.5)}, "only has cpu of 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Calculate(pool, named(tt.comps), logr.Discard())
			require.Error(t, err)
			assert.True(t, errdefs.IsConfig(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_NeedsNoPool(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Validate(named(map[string]Component{
		"notebook": autoCPU("master", 1),
		"engine":   autoCount("worker", 0.5),
	})), "modes may differ across machines")

	err := Validate(named(map[string]Component{
		"engine":  autoCount("gpu", 0.5),
		"monitor": autoCPU("gpu", 1),
	}))
	assert.True(t, errdefs.IsConfig(err))
	assert.ErrorContains(t, err, "same machine: gpu")
}

func TestCalculate_MachinesAreIndependent(t *testing.T) {
	t.Parallel()
	pool := NodePool{
		"worker": {Nodes: 2, CPUPerNode: 1, MemPerNode: 1000},
		"master": {Nodes: 1, CPUPerNode: 2, MemPerNode: 2000},
	}
	allocs, err := Calculate(pool, named(map[string]Component{
		"notebook": autoCPU("master", 1),
		"engine":   autoCount("worker", 0.5),
	}), logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, Allocation{Machine: "master", CPU: 2, Mem: 2000, Instances: 1}, allocs["notebook"])
	assert.Equal(t, Allocation{Machine: "worker", CPU: 0.5, Mem: 500, Instances: 4}, allocs["engine"])
}

func TestPoolFromState(t *testing.T) {
	t.Parallel()
	slave := func(host, group string, active bool) marathon.Slave {
		s := marathon.Slave{Hostname: host, Active: active, Resources: marathon.Resources{CPUs: 4, Mem: 6973}}
		if group != "" {
			s.Attributes = map[string]any{marathon.ConstraintField: group}
		}
		return s
	}
	pool := PoolFromState(&marathon.MesosState{Slaves: []marathon.Slave{
		slave("ip-10-2-1-12", "worker", true),
		slave("ip-10-2-1-11", "worker", true),
		slave("ip-10-2-1-13", "worker", false),
		slave("ip-10-2-1-14", "", true),
		slave("ip-10-2-1-10", "controller", true),
	}})

	require.Len(t, pool, 2)
	w := pool["worker"]
	assert.Equal(t, 2, w.Nodes)
	assert.InDelta(t, 4.0, w.CPUPerNode, 0)
	assert.InDelta(t, 6973.0, w.MemPerNode, 0)
	assert.Equal(t, "ip-10-2-1-12", w.Hostname)
	assert.Equal(t, []string{"ip-10-2-1-11", "ip-10-2-1-12"}, w.Hostnames)
	assert.Equal(t, 1, pool["controller"].Nodes)
}

func TestDiffPools(t *testing.T) {
	t.Parallel()
	before := NodePool{
		"worker": {Hostnames: []string{"a", "b"}},
		"gpu":    {Hostnames: []string{"g1"}},
	}
	after := NodePool{
		"worker": {Hostnames: []string{"a", "b", "d", "c"}},
		"master": {Hostnames: []string{"m"}},
	}
	changes := DiffPools(before, after)
	assert.Equal(t, map[string][]string{"worker": {"c", "d"}, "master": {"m"}}, changes.Added)
	assert.Equal(t, map[string][]string{"gpu": {"g1"}}, changes.Removed)
	assert.False(t, changes.Empty())
	assert.True(t, DiffPools(before, before).Empty())
}
