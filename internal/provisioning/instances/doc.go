// Package instances launches the cluster's instance groups and waits for
// them to converge.
//
// Instances are requested untagged and tagged one by one as each reaches
// running with a private address. An instance seen in a terminal state
// while launching aborts the whole launch.
package instances
