// Package ssh runs commands on, copies files to, and forwards ports through
// remote hosts over SSH. Connections are retried with backoff because hosts
// are usually still booting when first contacted.
//
// Host key verification is disabled by default: every host is freshly
// launched and its key is unknown.
package ssh
