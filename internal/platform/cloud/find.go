package cloud

import (
	"slices"

	"github.com/imamik/clusterous/internal/util/labels"
)

// First returns the first element of a lookup result, or nil.
func First[T any](items []*T, err error) (*T, error) {
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// MatchesFilter reports whether inst satisfies f.
func (f InstanceFilter) MatchesFilter(inst *Instance) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, inst.ID) {
		return false
	}
	if len(f.States) > 0 && !slices.Contains(f.States, inst.State) {
		return false
	}
	return labels.Matches(inst.Tags, f.Tags)
}

// IsLaunchFailure reports whether s aborts a launch.
func IsLaunchFailure(s InstanceState) bool {
	return slices.Contains(LaunchFailureStates, s)
}
