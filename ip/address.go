// Package ip provides the opaque network-address value consumed by the
// socket layer, plus name resolution over the OS resolver.
//
// License: MIT

package ip

import (
	"net/netip"
	"strconv"
)

// Family is the address family of an Address.
type Family int

const (
	// FamilyUnknown is the family of the zero Address.
	FamilyUnknown Family = iota
	// FamilyIPv4 is AF_INET.
	FamilyIPv4
	// FamilyIPv6 is AF_INET6.
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	}
	return "unknown"
}

// Address is a fixed-size numeric host address plus port. Immutable once
// constructed; produced by resolution or by accept, consumed by
// connect/listen/bind. Treated as an opaque token; equality is not part
// of the contract.
type Address struct {
	ap netip.AddrPort
}

// FromAddrPort wraps a numeric address and port.
func FromAddrPort(ap netip.AddrPort) Address {
	return Address{ap: ap}
}

// AddrPort exposes the underlying numeric value for the syscall layer.
func (a Address) AddrPort() netip.AddrPort {
	return a.ap
}

// IsValid reports whether the Address holds a usable value.
func (a Address) IsValid() bool {
	return a.ap.Addr().IsValid()
}

// Family returns the address family.
func (a Address) Family() Family {
	switch {
	case !a.ap.Addr().IsValid():
		return FamilyUnknown
	case a.ap.Addr().Is4() || a.ap.Addr().Is4In6():
		return FamilyIPv4
	}
	return FamilyIPv6
}

// Port returns the port in host byte order.
func (a Address) Port() uint16 {
	return a.ap.Port()
}

// Host returns the textual numeric host, without the port.
func (a Address) Host() string {
	if !a.ap.Addr().IsValid() {
		return "unknown af"
	}
	return a.ap.Addr().Unmap().String()
}

// URL returns "host:port" in numeric form.
func (a Address) URL() string {
	return a.Host() + ":" + strconv.Itoa(int(a.Port()))
}
