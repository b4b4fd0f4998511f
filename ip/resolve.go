// License: MIT

package ip

import (
	"context"
	"net"
	"net/netip"
	"strings"

	"github.com/rmgmachado/rmlib/internal/sock"
	"github.com/rmgmachado/rmlib/status"
)

// Resolve resolves "host:port" into the ordered address list returned by
// the OS resolver. The string is split on the FIRST colon, so IPv6
// literals such as "::1:4242" are misparsed; use ResolveHostPort for
// IPv6 literals. A string without a colon is rejected.
func Resolve(hostport string) ([]Address, status.Status) {
	sep := strings.Index(hostport, ":")
	if sep < 0 {
		return nil, status.FromErrno(sock.ErrInval, status.CodeIO)
	}
	return ResolveHostPort(hostport[:sep], hostport[sep+1:])
}

// ResolveHostPort resolves separate host and port strings. The port may
// be numeric or a service name. An empty host yields the unspecified
// (passive) address, suitable for listening. Address order is preserved
// as returned by the resolver and not re-sorted.
func ResolveHostPort(host, port string) ([]Address, status.Status) {
	portNum, err := net.DefaultResolver.LookupPort(context.Background(), "tcp", port)
	if err != nil {
		return nil, status.IOError(err)
	}
	if host == "" || host == "*" {
		return []Address{
			FromAddrPort(netip.AddrPortFrom(netip.IPv4Unspecified(), uint16(portNum))),
			FromAddrPort(netip.AddrPortFrom(netip.IPv6Unspecified(), uint16(portNum))),
		}, status.OK()
	}
	if addr, perr := netip.ParseAddr(host); perr == nil {
		return []Address{FromAddrPort(netip.AddrPortFrom(addr.Unmap(), uint16(portNum)))}, status.OK()
	}
	addrs, err := net.DefaultResolver.LookupNetIP(context.Background(), "ip", host)
	if err != nil {
		return nil, status.IOError(err)
	}
	list := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, FromAddrPort(netip.AddrPortFrom(a.Unmap(), uint16(portNum))))
	}
	return list, status.OK()
}

// PeerName formats an Address as numeric "host:port", the equivalent of
// a NI_NUMERICHOST|NI_NUMERICSERV name lookup.
func PeerName(a Address) (string, status.Status) {
	if !a.IsValid() {
		return "", status.FromErrno(sock.ErrInval, status.CodeIO)
	}
	return a.URL(), status.OK()
}

// LocalHostName returns the name of the local host, or an empty string
// when it cannot be retrieved.
func LocalHostName() string {
	name, err := sock.Hostname()
	if err != nil {
		return ""
	}
	return name
}
