package config

import (
	"fmt"
	"net/netip"
)

// SubnetBits is the prefix length of every subnet carved out of the network.
const SubnetBits = 24

// SubnetCIDR returns the index-th /24 inside network.
func SubnetCIDR(network string, index int) (string, error) {
	prefix, err := netip.ParsePrefix(network)
	if err != nil {
		return "", fmt.Errorf("invalid CIDR %q: %w", network, err)
	}
	if !prefix.Addr().Is4() {
		return "", fmt.Errorf("only IPv4 networks are supported, got %s", network)
	}
	if prefix.Bits() > SubnetBits {
		return "", fmt.Errorf("network %s is smaller than a /%d", network, SubnetBits)
	}
	if index < 0 || index >= 1<<(SubnetBits-prefix.Bits()) {
		return "", fmt.Errorf("subnet index %d out of range for %s", index, network)
	}

	base := prefix.Masked().Addr().As4()
	n := uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])
	n += uint32(index) << (32 - SubnetBits)
	addr := netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	return netip.PrefixFrom(addr, SubnetBits).String(), nil
}

// NextSubnetCIDR returns the /24 following the highest of existing, or the
// first /24 of network when existing is empty.
func NextSubnetCIDR(network string, existing []string) (string, error) {
	next := 0
	first, err := netip.ParsePrefix(network)
	if err != nil {
		return "", fmt.Errorf("invalid CIDR %q: %w", network, err)
	}
	base := first.Masked().Addr().As4()
	baseN := uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])
	for _, cidr := range existing {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return "", fmt.Errorf("invalid subnet CIDR %q: %w", cidr, err)
		}
		a := p.Masked().Addr().As4()
		n := uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
		if idx := int((n-baseN)>>(32-SubnetBits)) + 1; idx > next {
			next = idx
		}
	}
	return SubnetCIDR(network, next)
}
