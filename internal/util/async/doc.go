// Package async runs independent operations concurrently and collects their
// errors. Provisioning uses it to wait for instance groups side by side.
package async
