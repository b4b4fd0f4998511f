// License: MIT

package tls

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/rmgmachado/rmlib/internal/sock"
)

type want int

const (
	wantRead want = iota
	wantWrite
)

// rawConn adapts an OS descriptor to net.Conn for the engine. When a
// syscall would block, the calling goroutine parks until the session
// driver resumes it; the descriptor's blocking mode therefore decides
// whether engine calls complete in one step or surface want-read /
// want-write to the socket's caller.
type rawConn struct {
	h         sock.Handle
	parked    chan want
	resume    chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

func newRawConn(h sock.Handle) *rawConn {
	return &rawConn{
		h:      h,
		parked: make(chan want),
		resume: make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (r *rawConn) Read(p []byte) (int, error) {
	for {
		n, err := sock.Recv(r.h, p)
		if err == nil {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		if !sock.IsWouldBlock(err) {
			return 0, err
		}
		if !r.park(wantRead) {
			return 0, net.ErrClosed
		}
	}
}

// Write satisfies net.Conn's full-write contract, parking on each
// would-block until the driver resumes the session.
func (r *rawConn) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := sock.Send(r.h, p[total:])
		if err == nil {
			total += n
			continue
		}
		if !sock.IsWouldBlock(err) {
			return total, err
		}
		if !r.park(wantWrite) {
			return total, net.ErrClosed
		}
	}
	return total, nil
}

// park announces the needed readiness and blocks until resumed.
// Returns false once the session is closed.
func (r *rawConn) park(w want) bool {
	select {
	case r.parked <- w:
	case <-r.closed:
		return false
	}
	select {
	case <-r.resume:
		return true
	case <-r.closed:
		return false
	}
}

func (r *rawConn) close() {
	r.closeOnce.Do(func() { close(r.closed) })
}

// The engine holds the conn for record I/O only; addresses and
// deadlines are owned by the socket layer.

func (r *rawConn) Close() error                       { r.close(); return nil }
func (r *rawConn) LocalAddr() net.Addr                { return nil }
func (r *rawConn) RemoteAddr() net.Addr               { return nil }
func (r *rawConn) SetDeadline(t time.Time) error      { return nil }
func (r *rawConn) SetReadDeadline(t time.Time) error  { return nil }
func (r *rawConn) SetWriteDeadline(t time.Time) error { return nil }
