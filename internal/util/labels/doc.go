// Package labels provides consistent tagging utilities for cluster resources.
//
// Every resource a cluster creates carries the ownership tag, which is what
// "list resources owned by cluster X" queries filter on. Instances also carry
// a role tag so groups (nat, controller, workers, logging) can be told apart.
package labels
