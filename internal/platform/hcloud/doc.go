// Package hcloud implements cloud.Provider on the Hetzner Cloud API.
//
// Hetzner has no subnets-with-IDs, internet gateways or route tables. They are
// kept as pseudo-resources recorded in labels on the owning network:
//
//   - a subnet is one entry of the network's subnet list, its name stored under
//     clusterous.io/subnet-<ip>-<bits>
//   - the gateway is implicit; its name is stored under clusterous.io/gateway
//   - route tables are stored under clusterous.io/rtb-<n>, and instance routes
//     become network routes through the instance's private IP
//
// Security groups map to firewalls. Rules referencing another group are widened
// to the network range, since Hetzner firewalls only filter public traffic.
//
// Tag keys are not valid label keys, so they are translated (see labels.go).
// Label values are limited to 63 characters, which bounds cluster names on
// this backend.
package hcloud
