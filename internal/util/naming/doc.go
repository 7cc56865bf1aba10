// Package naming provides consistent naming functions for cluster resources.
//
// Infrastructure follows the pattern {cluster}-{kind} (vpc, gateway, route
// tables, security groups) and subnets add their kind and zone. Instances are
// named after their role so that a human browsing the provider console can
// tell the NAT, the controller and each worker group apart.
package naming
