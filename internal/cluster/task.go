package cluster

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/provisioning/destroy"
)

// Background task names.
const (
	TaskProvision = "provision"
	TaskTerminate = "terminate"
)

// Background task states.
const (
	TaskRunning   = "running"
	TaskSucceeded = "succeeded"
	TaskFailed    = "failed"
)

// Task is a provisioning or termination running in the background.
type Task struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Cluster    string    `json:"cluster,omitempty"`
	State      string    `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Error      string    `json:"error,omitempty"`

	err error
}

// Err returns the error the task failed with.
func (t *Task) Err() error {
	return t.err
}

// StartProvision runs Provision in the background and returns at once.
func (c *Controller) StartProvision(ctx context.Context, req *provisioning.Request) (*Task, error) {
	return c.start(ctx, TaskProvision, req.ClusterName, func(ctx context.Context) error {
		return c.Provision(ctx, req)
	})
}

// StartTerminate runs Terminate in the background and returns at once.
func (c *Controller) StartTerminate(ctx context.Context, opts destroy.Options) (*Task, error) {
	info, err := c.active()
	if err != nil {
		return nil, err
	}
	return c.start(ctx, TaskTerminate, info.ClusterName, func(ctx context.Context) error {
		return c.Terminate(ctx, opts)
	})
}

// start launches fn unless another task is running. The task outlives the
// caller's context cancellation; values such as deadlines still apply.
func (c *Controller) start(ctx context.Context, name, cluster string, fn func(context.Context) error) (*Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.task != nil && c.task.State == TaskRunning {
		return nil, errdefs.Conflictf("%s of %s is already running (task %s)", c.task.Name, c.task.Cluster, c.task.ID)
	}

	task := &Task{
		ID:        uuid.NewString(),
		Name:      name,
		Cluster:   cluster,
		State:     TaskRunning,
		StartedAt: time.Now(),
	}
	done := make(chan struct{})
	c.task = task
	c.done = done

	go func() {
		defer close(done)
		err := fn(context.WithoutCancel(ctx))

		c.mu.Lock()
		defer c.mu.Unlock()
		task.FinishedAt = time.Now()
		if err != nil {
			task.State = TaskFailed
			task.Error = err.Error()
			task.err = err
			return
		}
		task.State = TaskSucceeded
	}()

	snapshot := *task
	return &snapshot, nil
}

// Task returns a copy of the current or last background task, or nil.
func (c *Controller) Task() *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.task == nil {
		return nil
	}
	snapshot := *c.task
	return &snapshot
}

// Wait blocks until the current background task finishes or ctx is done.
func (c *Controller) Wait(ctx context.Context) (*Task, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil, nil
	}
	select {
	case <-done:
		return c.Task(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
