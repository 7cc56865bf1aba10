package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunParallel_Success(t *testing.T) {
	t.Parallel()
	var count atomic.Int32
	inc := func(context.Context) error {
		count.Add(1)
		return nil
	}

	err := RunParallel(context.Background(), []Task{
		{Name: "nat", Func: inc},
		{Name: "controller", Func: inc},
		{Name: "workers", Func: inc},
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), count.Load())
}

func TestRunParallel_EmptyTasks(t *testing.T) {
	t.Parallel()
	assert.NoError(t, RunParallel(context.Background(), nil))
}

func TestRunParallel_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	first := errors.New("first")
	second := errors.New("second")
	var ran atomic.Int32

	err := RunParallel(context.Background(), []Task{
		{Name: "a", Func: func(context.Context) error { ran.Add(1); return first }},
		{Name: "b", Func: func(context.Context) error { ran.Add(1); return nil }},
		{Name: "c", Func: func(context.Context) error { ran.Add(1); return second }},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Contains(t, err.Error(), "a: first")
	assert.Equal(t, int32(3), ran.Load())
}
