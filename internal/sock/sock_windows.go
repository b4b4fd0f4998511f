//go:build windows
// +build windows

// Winsock implementation over golang.org/x/sys/windows plus the handful
// of ws2_32 entry points x/sys does not export (WSAPoll, ioctlsocket,
// recv, send, accept).
//
// License: MIT

package sock

import (
	"errors"
	"fmt"
	"net/netip"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Handle is an OS socket descriptor.
type Handle = windows.Handle

// Invalid is the invalid-descriptor sentinel.
const Invalid Handle = windows.InvalidHandle

// Errno sentinels shared with the status layer.
var (
	ErrWouldBlock  error = windows.WSAEWOULDBLOCK
	ErrNotConn     error = windows.WSAENOTCONN
	ErrAlready     error = windows.WSAEALREADY
	ErrInval       error = windows.WSAEINVAL
	ErrNotSock     error = windows.WSAENOTSOCK
	ErrConnRefused error = windows.WSAECONNREFUSED
)

const (
	sdReceive = 0
	sdSend    = 1
	sdBoth    = 2

	fionbio = 0x8004667e

	pollRDNorm = 0x0100
	pollWRNorm = 0x0010
	pollErr    = 0x0001
	pollHup    = 0x0002

	socketError = ^uintptr(0)
)

var shutdownHow = map[How]int{
	HowSend: sdSend,
	HowRecv: sdReceive,
	HowBoth: sdBoth,
}

var (
	modws2_32       = windows.NewLazySystemDLL("ws2_32.dll")
	procWSAPoll     = modws2_32.NewProc("WSAPoll")
	procIoctlsocket = modws2_32.NewProc("ioctlsocket")
	procAccept      = modws2_32.NewProc("accept")
	procRecv        = modws2_32.NewProc("recv")
	procSend        = modws2_32.NewProc("send")
)

// wsaPollFd mirrors WSAPOLLFD.
type wsaPollFd struct {
	fd      uintptr
	events  int16
	revents int16
}

func init() {
	var data windows.WSAData
	// MAKEWORD(2, 2)
	_ = windows.WSAStartup(uint32(0x0202), &data)
}

// New creates a stream TCP socket for the given address family.
func New(v6 bool) (Handle, error) {
	family := int32(windows.AF_INET)
	if v6 {
		family = windows.AF_INET6
	}
	h, err := windows.WSASocket(family, windows.SOCK_STREAM, windows.IPPROTO_TCP, nil, 0, 0)
	if err != nil {
		return Invalid, fmt.Errorf("socket create: %w", err)
	}
	return h, nil
}

// Close releases the descriptor.
func Close(h Handle) error {
	return windows.Closesocket(h)
}

// SetNonblock toggles non-blocking mode via ioctlsocket(FIONBIO).
func SetNonblock(h Handle, nonblocking bool) error {
	arg := uint32(0)
	if nonblocking {
		arg = 1
	}
	r, _, callErr := procIoctlsocket.Call(uintptr(h), fionbio, uintptr(unsafe.Pointer(&arg)))
	if r != 0 {
		return procError(callErr)
	}
	return nil
}

// Bind binds the descriptor to a local address.
func Bind(h Handle, ap netip.AddrPort) error {
	return windows.Bind(h, sockaddr(ap))
}

// Listen marks the descriptor as a passive socket.
func Listen(h Handle, backlog int) error {
	return windows.Listen(h, backlog)
}

// Connect issues a connect to the remote address. The descriptor is
// still blocking at this point; the socket layer applies the requested
// mode afterwards.
func Connect(h Handle, ap netip.AddrPort) error {
	return windows.Connect(h, sockaddr(ap))
}

// Accept accepts one pending connection, returning the child descriptor
// and the peer address.
func Accept(h Handle) (Handle, netip.AddrPort, error) {
	var rsa windows.RawSockaddrAny
	rsaLen := int32(unsafe.Sizeof(rsa))
	r, _, callErr := procAccept.Call(uintptr(h), uintptr(unsafe.Pointer(&rsa)), uintptr(unsafe.Pointer(&rsaLen)))
	if r == socketError {
		return Invalid, netip.AddrPort{}, procError(callErr)
	}
	sa, err := rsa.Sockaddr()
	if err != nil {
		return Handle(r), netip.AddrPort{}, nil
	}
	return Handle(r), addrPort(sa), nil
}

// Send performs at most one send call.
func Send(h Handle, p []byte) (int, error) {
	var buf *byte
	if len(p) > 0 {
		buf = &p[0]
	}
	r, _, callErr := procSend.Call(uintptr(h), uintptr(unsafe.Pointer(buf)), uintptr(len(p)), 0)
	if r == socketError {
		return 0, procError(callErr)
	}
	return int(r), nil
}

// Recv performs at most one recv call.
func Recv(h Handle, p []byte) (int, error) {
	var buf *byte
	if len(p) > 0 {
		buf = &p[0]
	}
	r, _, callErr := procRecv.Call(uintptr(h), uintptr(unsafe.Pointer(buf)), uintptr(len(p)), 0)
	if r == socketError {
		return 0, procError(callErr)
	}
	return int(r), nil
}

// Shutdown performs the OS-level half or full shutdown.
func Shutdown(h Handle, how How) error {
	return windows.Shutdown(h, shutdownHow[how])
}

// LocalName returns the locally bound address of the descriptor.
func LocalName(h Handle) (netip.AddrPort, error) {
	sa, err := windows.Getsockname(h)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return addrPort(sa), nil
}

// PeerName returns the remote address of a connected descriptor.
func PeerName(h Handle) (netip.AddrPort, error) {
	sa, err := windows.Getpeername(h)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return addrPort(sa), nil
}

// Poll waits for readiness on one descriptor for one event direction
// using WSAPoll. timeoutMs < 0 blocks forever, 0 returns immediately.
func Poll(h Handle, pollOut bool, timeoutMs int) (PollResult, error) {
	events := int16(pollRDNorm)
	if pollOut {
		events = pollWRNorm
	}
	fd := wsaPollFd{fd: uintptr(h), events: events}
	r, _, callErr := procWSAPoll.Call(uintptr(unsafe.Pointer(&fd)), 1, uintptr(timeoutMs))
	if r == socketError {
		return PollResult{}, procError(callErr)
	}
	if r == 0 {
		return PollResult{TimedOut: true}, nil
	}
	re := fd.revents
	return PollResult{
		In:  re&pollRDNorm != 0,
		Out: re&pollWRNorm != 0,
		Err: re&pollErr != 0,
		Hup: re&pollHup != 0,
	}, nil
}

// IsWouldBlock reports whether err is the Winsock would-block errno.
func IsWouldBlock(err error) bool {
	return errors.Is(err, windows.WSAEWOULDBLOCK)
}

// procError extracts the errno captured by LazyProc.Call at the time
// of the syscall. Querying WSAGetLastError afterwards would race with
// the runtime's own use of the thread error value.
func procError(callErr error) error {
	if errno, ok := callErr.(syscall.Errno); ok && errno != 0 {
		return errno
	}
	return windows.WSAEINVAL
}

func sockaddr(ap netip.AddrPort) windows.Sockaddr {
	if ap.Addr().Is4() || ap.Addr().Is4In6() {
		sa := &windows.SockaddrInet4{Port: int(ap.Port())}
		sa.Addr = ap.Addr().Unmap().As4()
		return sa
	}
	sa := &windows.SockaddrInet6{Port: int(ap.Port())}
	sa.Addr = ap.Addr().As16()
	return sa
}

func addrPort(sa windows.Sockaddr) netip.AddrPort {
	switch v := sa.(type) {
	case *windows.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *windows.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port))
	}
	return netip.AddrPort{}
}
