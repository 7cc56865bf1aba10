package handlers

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/imamik/clusterous/internal/cluster"
)

func TestRenderStatus(t *testing.T) {
	st := &cluster.Status{
		Name:          "demo",
		State:         cluster.StateRunning,
		InstanceCount: 5,
		Controller:    &cluster.ControllerStatus{Type: "t2.small", Uptime: 90 * time.Minute},
		NAT:           &cluster.NATStatus{IP: "54.0.0.1", Type: "t2.micro"},
		Nodes: map[string]cluster.NodePool{
			"worker": {Type: "c4.large", Count: 3},
			"master": {Type: "c4.xlarge", Count: 1},
		},
		Volume:     &cluster.VolumeStatus{ID: "vol-1", Borrowed: true},
		Components: map[string]int{"engine": 6},
	}

	out := renderStatus(st)
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "5 instances running")
	assert.Contains(t, out, "up 1h30m0s")
	assert.Contains(t, out, "54.0.0.1")
	assert.Contains(t, out, "x3")
	assert.Contains(t, out, "vol-1 (existed before the cluster)")
	assert.Contains(t, out, "6 instances")
	assert.Less(t, strings.Index(out, "master"), strings.Index(out, "worker"), "roles are sorted")
}

func TestRenderStatus_NoComponents(t *testing.T) {
	out := renderStatus(&cluster.Status{Name: "demo", State: cluster.StatePartial})
	assert.Contains(t, out, "No components running")
	assert.Contains(t, out, "partial")
	assert.NotContains(t, out, "Shared volume")
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "45s", formatUptime(45*time.Second))
	assert.Equal(t, "2d 3h0m0s", formatUptime(51*time.Hour+20*time.Second))
}
