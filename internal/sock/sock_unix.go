//go:build !windows
// +build !windows

// POSIX implementation over golang.org/x/sys/unix.
//
// License: MIT

package sock

import (
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// Handle is an OS socket descriptor.
type Handle = int

// Invalid is the invalid-descriptor sentinel.
const Invalid Handle = -1

// Errno sentinels shared with the status layer.
var (
	ErrWouldBlock  error = unix.EWOULDBLOCK
	ErrNotConn     error = unix.ENOTCONN
	ErrAlready     error = unix.EALREADY
	ErrInval       error = unix.EINVAL
	ErrNotSock     error = unix.ENOTSOCK
	ErrConnRefused error = unix.ECONNREFUSED
)

var shutdownHow = map[How]int{
	HowSend: unix.SHUT_WR,
	HowRecv: unix.SHUT_RD,
	HowBoth: unix.SHUT_RDWR,
}

// New creates a stream TCP socket for the given address family.
func New(v6 bool) (Handle, error) {
	family := unix.AF_INET
	if v6 {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return Invalid, fmt.Errorf("socket create: %w", err)
	}
	return fd, nil
}

// Close releases the descriptor.
func Close(h Handle) error {
	return unix.Close(h)
}

// SetNonblock toggles non-blocking mode on the descriptor.
func SetNonblock(h Handle, nonblocking bool) error {
	return unix.SetNonblock(h, nonblocking)
}

// Bind binds the descriptor to a local address.
func Bind(h Handle, ap netip.AddrPort) error {
	return unix.Bind(h, sockaddr(ap))
}

// Listen marks the descriptor as a passive socket.
func Listen(h Handle, backlog int) error {
	return unix.Listen(h, backlog)
}

// Connect issues a connect to the remote address. The descriptor is
// still blocking at this point; the socket layer applies the requested
// mode afterwards.
func Connect(h Handle, ap netip.AddrPort) error {
	return unix.Connect(h, sockaddr(ap))
}

// Accept accepts one pending connection, returning the child descriptor
// and the peer address.
func Accept(h Handle) (Handle, netip.AddrPort, error) {
	nfd, sa, err := unix.Accept(h)
	if err != nil {
		return Invalid, netip.AddrPort{}, err
	}
	return nfd, addrPort(sa), nil
}

// Send performs at most one write syscall.
func Send(h Handle, p []byte) (int, error) {
	return unix.Write(h, p)
}

// Recv performs at most one read syscall.
func Recv(h Handle, p []byte) (int, error) {
	return unix.Read(h, p)
}

// Shutdown performs the OS-level half or full shutdown.
func Shutdown(h Handle, how How) error {
	return unix.Shutdown(h, shutdownHow[how])
}

// LocalName returns the locally bound address of the descriptor.
func LocalName(h Handle) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(h)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return addrPort(sa), nil
}

// PeerName returns the remote address of a connected descriptor.
func PeerName(h Handle) (netip.AddrPort, error) {
	sa, err := unix.Getpeername(h)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return addrPort(sa), nil
}

// Poll waits for readiness on one descriptor for one event direction.
// timeoutMs < 0 blocks forever, 0 returns immediately. EINTR restarts
// the wait with the full timeout.
func Poll(h Handle, pollOut bool, timeoutMs int) (PollResult, error) {
	events := int16(unix.POLLIN)
	if pollOut {
		events = unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(h), Events: events}}
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return PollResult{}, err
		}
		if n == 0 {
			return PollResult{TimedOut: true}, nil
		}
		re := fds[0].Revents
		return PollResult{
			In:  re&unix.POLLIN != 0,
			Out: re&unix.POLLOUT != 0,
			Err: re&unix.POLLERR != 0,
			Hup: re&unix.POLLHUP != 0,
		}, nil
	}
}

// IsWouldBlock reports whether err is the OS would-block errno.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func sockaddr(ap netip.AddrPort) unix.Sockaddr {
	if ap.Addr().Is4() || ap.Addr().Is4In6() {
		sa := &unix.SockaddrInet4{Port: int(ap.Port())}
		sa.Addr = ap.Addr().Unmap().As4()
		return sa
	}
	sa := &unix.SockaddrInet6{Port: int(ap.Port())}
	sa.Addr = ap.Addr().As16()
	return sa
}

func addrPort(sa unix.Sockaddr) netip.AddrPort {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port))
	}
	return netip.AddrPort{}
}
