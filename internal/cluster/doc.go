// Package cluster is the lifecycle controller of a clusterous cluster.
//
// A Controller provisions a cluster by running the provisioning phases in
// order:
//
//  1. preflight: validate the request, reject a live cluster of the same
//     name and record the cluster as active
//  2. topology: network, subnets, gateway, route tables, security groups
//  3. volume-check: verify a borrowed volume before any instance exists
//  4. instances: NAT, controller, node groups, central logging
//  5. volume: create or borrow the shared volume and attach it
//  6. configure: NAT port forwarding and configuration playbooks
//  7. finalize: mark the cluster running and open the scheduler tunnels
//
// It also adds and removes nodes, reports status, switches the active
// cluster and terminates it. Provisioning and termination can run as the
// single background task of a Controller.
package cluster
