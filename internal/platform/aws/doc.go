// Package aws implements the cloud capability interfaces on Amazon EC2.
//
// Every list call filters on EC2 tags ("tag:<key>" filters), infrastructure
// resources are tagged at creation through TagSpecifications, and instances
// are launched untagged with a client token so a retried RunInstances never
// doubles a group. Deletes treat "not found" as success and retry
// DependencyViolation while dependent resources drain.
package aws
