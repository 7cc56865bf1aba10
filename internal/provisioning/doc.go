// Package provisioning provides shared types, interfaces, and orchestration for cluster provisioning.
//
// # Subpackages
//
//   - topology/: network, subnets, gateway, route tables, security groups
//   - instances/: instance group launch and the tag-on-convergence protocol
//   - volume/: the shared volume, created or borrowed
//   - configure/: NAT port forwarding and configuration playbooks
//   - destroy/: ordered teardown
//
// # Core Types
//
// Context carries the request, configuration, state, cloud provider and observer.
// Phase defines a provisioning step with Name() and Provision() methods.
// State accumulates results from each phase (topology, instances, volume).
package provisioning
