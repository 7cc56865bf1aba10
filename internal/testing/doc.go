// Package testing provides in-memory fakes shared by unit and end-to-end
// tests: a cloud provider, a container scheduler, a command runner and a
// configuration executor.
//
// Usage:
//
//	fc := testutil.NewFakeCloud()
//	fc.LaunchStates = func(cloud.InstanceRequest, int) []cloud.InstanceState {
//	    return []cloud.InstanceState{cloud.StatePending, cloud.StateStopped}
//	}
package testing
