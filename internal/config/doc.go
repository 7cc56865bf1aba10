// Package config holds the local configuration of the tool: the provider
// profile read from ~/.clusterous.yml (with CLUSTEROUS_* environment
// overrides), the cluster profile passed to "create", tunable timeouts and
// the fixed constants shared by provisioning and scheduling.
package config
