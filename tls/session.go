// License: MIT

package tls

import (
	ctls "crypto/tls"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/rmgmachado/rmlib/internal/sock"
	"github.com/rmgmachado/rmlib/status"
)

type opKind int

const (
	opNone opKind = iota
	opHandshake
	opRead
	opWrite
	opShutdown
)

func (k opKind) String() string {
	switch k {
	case opHandshake:
		return "handshake"
	case opRead:
		return "read"
	case opWrite:
		return "write"
	case opShutdown:
		return "shutdown"
	}
	return "none"
}

type opResult struct {
	n   int
	err error
}

// Session is one TLS connection attached to an OS descriptor. Each
// engine operation runs on its own goroutine over the descriptor; when
// the descriptor would block, the operation parks and the session
// reports want-read or want-write. The caller must re-issue the same
// operation, with the same buffer, after a successful readiness wait,
// the same contract the OS-level socket already imposes. A Session is
// not safe for concurrent use; the socket layer's single-caller rule
// covers it.
type Session struct {
	conn      *ctls.Conn
	raw       *rawConn
	op        opKind
	done      chan opResult
	verifying bool
}

func newSession(c *Context, h sock.Handle) *Session {
	raw := newRawConn(h)
	var conn *ctls.Conn
	if c.mode == ModeClient {
		conn = ctls.Client(raw, c.cfg)
	} else {
		conn = ctls.Server(raw, c.cfg)
	}
	return &Session{conn: conn, raw: raw, done: make(chan opResult, 1), verifying: c.verify}
}

// Handshake drives the TLS handshake one step. Outcomes: OK (done),
// would-block-read / would-block-write (wait for readiness and call
// again), or fatal.
func (s *Session) Handshake() status.Status {
	_, st := s.step(opHandshake, func() (int, error) {
		return 0, s.conn.Handshake()
	})
	return st
}

// Read decrypts application data into p: at most one engine operation.
func (s *Session) Read(p []byte) (int, status.Status) {
	return s.step(opRead, func() (int, error) {
		return s.conn.Read(p)
	})
}

// Write encrypts and sends application data from p. The byte count is
// reported when the operation completes; while it is parked on
// would-block the count is zero.
func (s *Session) Write(p []byte) (int, status.Status) {
	return s.step(opWrite, func() (int, error) {
		return s.conn.Write(p)
	})
}

// Shutdown sends the TLS close-notify alert without closing the
// descriptor. Subject to the same stepping as every other operation.
func (s *Session) Shutdown() status.Status {
	_, st := s.step(opShutdown, func() (int, error) {
		return 0, s.conn.CloseWrite()
	})
	return st
}

// Close tears the session down without a protocol-level shutdown. Any
// parked operation is released with an error. The descriptor itself is
// owned and closed by the socket layer.
func (s *Session) Close() {
	s.raw.close()
}

// Verified reports whether the handshake completed and the peer
// presented a certificate that passed verification. With client-side
// verification the chains are validated by the context's explicit
// verifier, so a completed handshake implies a verified peer.
func (s *Session) Verified() bool {
	cs := s.conn.ConnectionState()
	if !cs.HandshakeComplete || len(cs.PeerCertificates) == 0 {
		return false
	}
	return len(cs.VerifiedChains) > 0 || s.verifying
}

// step starts kind on its own goroutine, or resumes the parked instance
// of the same operation, then waits for either completion or another
// park. Mismatched in-flight operations are a caller error.
func (s *Session) step(kind opKind, fn func() (int, error)) (int, status.Status) {
	switch s.op {
	case opNone:
		s.op = kind
		go func() {
			n, err := fn()
			s.done <- opResult{n: n, err: err}
		}()
	case kind:
		select {
		case s.raw.resume <- struct{}{}:
		case <-s.raw.closed:
			s.op = opNone
			return 0, status.IOError(net.ErrClosed)
		}
	default:
		return 0, status.Fatal("tls session: " + s.op.String() + " still in progress")
	}

	select {
	case r := <-s.done:
		s.op = opNone
		return r.n, engineStatus(r.err)
	case w := <-s.raw.parked:
		if w == wantRead {
			return 0, status.WouldBlockRead()
		}
		return 0, status.WouldBlockWrite()
	}
}

// engineStatus maps an engine error to the unified status model: clean
// closure becomes peer-closing, surfaced OS errors take the raw errno
// path, anything else is fatal with the engine's message.
func engineStatus(err error) status.Status {
	if err == nil {
		return status.OK()
	}
	if errors.Is(err, io.EOF) {
		return status.PeerClosing()
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return status.FromErrno(errno, status.CodeIO)
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) {
		return status.IOError(err)
	}
	return status.Fatal(err.Error())
}
