package cloud

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imamik/clusterous/internal/util/labels"
)

func TestFirst(t *testing.T) {
	t.Parallel()

	n, err := First([]*Network{{ID: "vpc-1"}, {ID: "vpc-2"}}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "vpc-1", n.ID)

	n, err = First[Network](nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, n)

	boom := errors.New("boom")
	n, err = First([]*Network{{ID: "vpc-1"}}, boom)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, n)
}

func TestInstanceFilter(t *testing.T) {
	t.Parallel()

	inst := &Instance{
		ID:    "i-1",
		State: StateRunning,
		Tags:  labels.NewTagBuilder("demo").WithRole("worker").Build(),
	}

	assert.True(t, InstanceFilter{}.MatchesFilter(inst))
	assert.True(t, InstanceFilter{Tags: labels.Owned("demo"), States: OwnedStates}.MatchesFilter(inst))
	assert.False(t, InstanceFilter{Tags: labels.Owned("other")}.MatchesFilter(inst))
	assert.False(t, InstanceFilter{States: []InstanceState{StatePending}}.MatchesFilter(inst))
	assert.False(t, InstanceFilter{IDs: []string{"i-2"}}.MatchesFilter(inst))
	assert.Equal(t, "worker", inst.Role())
	assert.False(t, inst.Addressable())
}

func TestIsLaunchFailure(t *testing.T) {
	t.Parallel()

	for _, s := range []InstanceState{StateTerminated, StateStopped, StateStopping, StateShuttingDown} {
		assert.True(t, IsLaunchFailure(s), s)
	}
	assert.False(t, IsLaunchFailure(StatePending))
	assert.False(t, IsLaunchFailure(StateRunning))
}
