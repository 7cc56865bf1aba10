// Package volume manages the shared volume mounted on the controller.
//
// A cluster either creates its volume or borrows an existing one. Borrowed
// volumes are checked before any instance is launched: they must be
// available and in the zone of the private subnet.
package volume
