// Package topology builds the network layout of a cluster: the network,
// a public and a private subnet, the gateway, both route tables and the two
// security groups.
//
// Every resource is looked up by its canonical Name tag plus the ownership
// tag and only created on a miss, so the phase can be re-run after a partial
// failure without duplicating anything.
package topology
