// Package ansible applies configuration to cluster hosts by running
// ansible-playbook locally.
//
// Hosts reachable from this machine (the controller, through the NAT's
// forwarded SSH port) are configured directly. Private nodes are configured
// from the controller: run_remote.yml copies the key, an inventory, a vars
// file and the named playbook to the controller and runs it there.
package ansible
