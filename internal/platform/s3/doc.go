// Package s3 ensures the object storage bucket backing the cluster's
// container image registry exists before the controller is configured.
package s3
