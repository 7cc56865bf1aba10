// Package destroy tears a cluster down: instances first, then the shared
// volume according to its ownership, then the network resources in
// dependency order.
//
// A failure on one resource kind does not stop the others; all failures are
// returned together as a CleanupError.
package destroy
