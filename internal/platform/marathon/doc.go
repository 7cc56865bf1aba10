// Package marathon is a small client for the two scheduler APIs running on
// the controller: Marathon (applications and their tasks) and the Mesos
// master (agent inventory). Both are reached through a tunnel, so clients
// are built per call from the tunnel's local address.
package marathon
