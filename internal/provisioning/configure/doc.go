// Package configure prepares the converged hosts: it forwards the NAT's
// tunnel port to the controller and runs the controller, central logging
// and node playbooks.
package configure
