// Package environment runs application environments on a cluster's
// Marathon scheduler.
//
// An environment file names components, each pinned to a machine group with
// either a fixed instance count (cpu "auto") or a fixed cpu share (count
// "auto"). Launch reads the node pool from the Mesos master, resolves the
// "auto" values, submits every component and waits until all instances have
// started. Scale keeps running components proportional to their group after
// nodes are added or removed.
package environment
