package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task is a named operation.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunParallel starts every task, waits for all of them and returns their
// errors joined, each prefixed with the task name. Tasks are not cancelled
// when a sibling fails.
func RunParallel(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := task.Func(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", task.Name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
