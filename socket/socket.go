// License: MIT

package socket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rmgmachado/rmlib/internal/sock"
	"github.com/rmgmachado/rmlib/ip"
	"github.com/rmgmachado/rmlib/status"
	"github.com/rmgmachado/rmlib/tls"
)

const (
	// DefaultListenBacklog is used when Listen receives a backlog <= 0.
	DefaultListenBacklog = 512
	// DefaultRecvSize is the chunk size used by RecvAppend.
	DefaultRecvSize = 16 * 1024

	// WaitForever blocks a WaitEvent until readiness.
	WaitForever = -1
	// WaitNever makes WaitEvent return immediately; the default when a
	// caller has no specific timeout.
	WaitNever = 0
)

var log = zap.NewNop()

// SetLogger installs a package logger. The default discards everything.
func SetLogger(l *zap.Logger) {
	if l != nil {
		log = l
	}
}

var uidCounter atomic.Uint64

// nextUID returns a process-unique, monotonically increasing connection
// identifier. Identifiers are never reused.
func nextUID() uint64 {
	return uidCounter.Add(1)
}

// recv chunks for RecvAppend are pooled; a fresh 16 KiB allocation per
// call would dominate the receive path.
var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, DefaultRecvSize)
		return &b
	},
}

// conn is the shared interior of a Socket: the OS handle, the optional
// TLS session, and the state machine. Clones of a Socket share one conn
// under an atomic reference count; the count extends lifetime only and
// grants no concurrency (see package doc).
type conn struct {
	handle   sock.Handle
	sess     *tls.Session
	tctx     *tls.Context
	uid      uint64
	mode     Mode
	state    State
	refs     atomic.Int32
	sendMark time.Time
	recvMark time.Time
	pending  *conn // TLS child mid-handshake while the listener is accepting
}

// Socket is a TCP connection or listener, optionally carrying a
// transparent TLS layer. The zero value is unusable; construct with
// New or NewTLS.
type Socket struct {
	c *conn
}

// New creates an idle plain TCP socket.
func New() Socket {
	c := &conn{handle: sock.Invalid}
	c.refs.Store(1)
	return Socket{c: c}
}

// NewTLS creates an idle socket bound to a TLS Context. Every
// connection it establishes or accepts carries a TLS session created
// from the context.
func NewTLS(ctx *tls.Context) Socket {
	c := &conn{handle: sock.Invalid, tctx: ctx}
	c.refs.Store(1)
	return Socket{c: c}
}

// Clone returns a Socket sharing this one's handle and state. The
// handle is released when the last clone is closed. Cloning extends
// lifetime only; it does not make concurrent use legal, and it does
// not shield the connection from a Disconnect issued through any
// owner.
func (s Socket) Clone() Socket {
	if s.c != nil {
		s.c.refs.Add(1)
	}
	return s
}

// Close releases this owner's reference. The last release closes the
// OS handle and tears down any TLS session without a protocol-level
// shutdown; use Disconnect for a clean close.
func (s Socket) Close() status.Status {
	if s.c == nil {
		return status.OK()
	}
	if s.c.refs.Add(-1) > 0 {
		return status.OK()
	}
	return s.c.reset()
}

// UID returns the connection identifier assigned on successful
// connect, accept, or listen; zero while idle.
func (s Socket) UID() uint64 {
	if s.c == nil {
		return 0
	}
	return s.c.uid
}

// State returns the connection state.
func (s Socket) State() State {
	if s.c == nil {
		return StateIdle
	}
	return s.c.state
}

// Mode returns the cached blocking mode.
func (s Socket) Mode() Mode {
	if s.c == nil {
		return Blocking
	}
	return s.c.mode
}

// RawFD exposes the underlying OS descriptor for diagnostics.
func (s Socket) RawFD() uintptr {
	if s.c == nil || s.c.handle == sock.Invalid {
		return ^uintptr(0)
	}
	return uintptr(s.c.handle)
}

// SendElapsed returns the time since data was last sent.
func (s Socket) SendElapsed() time.Duration {
	if s.c == nil || s.c.sendMark.IsZero() {
		return 0
	}
	return time.Since(s.c.sendMark)
}

// RecvElapsed returns the time since data was last received.
func (s Socket) RecvElapsed() time.Duration {
	if s.c == nil || s.c.recvMark.IsZero() {
		return 0
	}
	return time.Since(s.c.recvMark)
}

// ResetSendTimer restarts the send elapsed-time tracker.
func (s Socket) ResetSendTimer() {
	if s.c != nil {
		s.c.sendMark = time.Now()
	}
}

// ResetRecvTimer restarts the receive elapsed-time tracker.
func (s Socket) ResetRecvTimer() {
	if s.c != nil {
		s.c.recvMark = time.Now()
	}
}

// SetMode toggles blocking mode. Only valid once a handle exists; the
// cached mode is updated only when the OS call succeeds.
func (s Socket) SetMode(mode Mode) status.Status {
	if s.c == nil || s.c.handle == sock.Invalid {
		return status.FromErrno(sock.ErrNotSock, status.CodeIO)
	}
	return s.c.setMode(mode)
}

// LocalAddr returns the locally bound address.
func (s Socket) LocalAddr() (ip.Address, status.Status) {
	if s.c == nil || s.c.handle == sock.Invalid {
		return ip.Address{}, status.FromErrno(sock.ErrNotSock, status.CodeIO)
	}
	ap, err := sock.LocalName(s.c.handle)
	if err != nil {
		return ip.Address{}, status.FromErrno(err, status.CodeIO)
	}
	return ip.FromAddrPort(ap), status.OK()
}

// RemoteAddr returns the peer address of a connected socket.
func (s Socket) RemoteAddr() (ip.Address, status.Status) {
	if s.c == nil || s.c.handle == sock.Invalid {
		return ip.Address{}, status.FromErrno(sock.ErrNotSock, status.CodeIO)
	}
	ap, err := sock.PeerName(s.c.handle)
	if err != nil {
		return ip.Address{}, status.FromErrno(err, status.CodeIO)
	}
	return ip.FromAddrPort(ap), status.OK()
}

// VerifyPeerCertificate reports whether the peer presented a
// certificate that passed verification. Always true for plain TCP
// sockets; false when not connected.
func (s Socket) VerifyPeerCertificate() bool {
	if s.c == nil || s.c.sess == nil {
		return true
	}
	if s.c.state != StateConnected {
		return false
	}
	return s.c.sess.Verified()
}

// Connect establishes a connection to the server address and applies
// the requested blocking mode. With a TLS context the socket enters
// StateConnecting until the handshake completes; on a non-blocking
// socket a would-block status is returned and Connect must be called
// again after readiness (calling Connect while connecting re-drives
// the handshake). Any failure closes the handle and returns to idle.
func (s Socket) Connect(server ip.Address, mode Mode) status.Status {
	c := s.c
	if c == nil {
		return status.FromErrno(sock.ErrNotSock, status.CodeIO)
	}
	if c.state == StateConnecting {
		return c.driveConnect()
	}
	if c.state != StateIdle {
		return status.FromErrno(sock.ErrAlready, status.CodeIO)
	}
	if st := c.create(server); !st.OK() {
		c.reset()
		return st
	}
	if err := sock.Connect(c.handle, server.AddrPort()); err != nil {
		st := status.FromErrno(err, status.CodeIO)
		c.reset()
		return st
	}
	if st := c.setMode(mode); !st.OK() {
		c.reset()
		return st
	}
	c.uid = nextUID()
	c.sendMark = time.Now()
	c.recvMark = c.sendMark
	if c.sess != nil {
		c.moveTo(StateConnecting)
		return c.driveConnect()
	}
	c.moveTo(StateConnected)
	log.Debug("connected", zap.Uint64("uid", c.uid), zap.String("peer", server.URL()))
	return status.OK()
}

// Listen binds to the server address and starts listening. Rejected
// unless the socket is idle.
func (s Socket) Listen(server ip.Address, mode Mode, backlog int) status.Status {
	c := s.c
	if c == nil {
		return status.FromErrno(sock.ErrNotSock, status.CodeIO)
	}
	if c.state != StateIdle {
		return status.FromErrno(sock.ErrAlready, status.CodeIO)
	}
	if backlog <= 0 {
		backlog = DefaultListenBacklog
	}
	if st := c.create(server); !st.OK() {
		c.reset()
		return st
	}
	if err := sock.Bind(c.handle, server.AddrPort()); err != nil {
		st := status.FromErrno(err, status.CodeIO)
		c.reset()
		return st
	}
	if err := sock.Listen(c.handle, backlog); err != nil {
		st := status.FromErrno(err, status.CodeIO)
		c.reset()
		return st
	}
	if st := c.setMode(mode); !st.OK() {
		c.reset()
		return st
	}
	c.uid = nextUID()
	c.moveTo(StateListening)
	log.Debug("listening", zap.Uint64("uid", c.uid), zap.String("addr", server.URL()))
	return status.OK()
}

// Accept takes one pending connection from a listening socket. When
// the listener carries a TLS context the child must complete its
// server-side handshake before it is returned: the listener stays in
// StateAccepting across would-block returns, and Accept must be called
// again after readiness. A child handshake failure destroys the child
// only; the listener keeps listening.
func (s Socket) Accept(mode Mode) (Socket, status.Status) {
	c := s.c
	if c == nil {
		return Socket{}, status.FromErrno(sock.ErrNotSock, status.CodeIO)
	}
	switch c.state {
	case StateAccepting:
		return c.driveAccept()
	case StateListening:
		// fall through to the OS-level accept below
	default:
		return Socket{}, status.FromErrno(sock.ErrInval, status.CodeIO)
	}

	h, peer, err := sock.Accept(c.handle)
	if err != nil {
		return Socket{}, status.FromErrno(err, status.CodeWantRead)
	}
	child := &conn{handle: h, mode: Blocking, state: StateCreated}
	child.refs.Store(1)
	if st := child.setMode(mode); !st.OK() {
		child.reset()
		return Socket{}, st
	}
	child.uid = nextUID()
	child.sendMark = time.Now()
	child.recvMark = child.sendMark

	if c.tctx == nil {
		child.moveTo(StateConnected)
		log.Debug("accepted", zap.Uint64("uid", child.uid), zap.String("peer", peer.String()))
		return Socket{c: child}, status.OK()
	}

	sess, st := c.tctx.NewSession(h)
	if !st.OK() {
		child.reset()
		return Socket{}, st
	}
	child.tctx = c.tctx
	child.sess = sess
	child.moveTo(StateConnecting)
	c.pending = child
	c.moveTo(StateAccepting)
	return c.driveAccept()
}

// Send transmits at most one OS-level or TLS-engine write and returns
// the bytes actually sent; a short count with an OK status is normal.
// Valid only while connected.
func (s Socket) Send(p []byte) (int, status.Status) {
	c := s.c
	if c == nil || c.state != StateConnected {
		return 0, status.FromErrno(sock.ErrNotConn, status.CodeIO)
	}
	if len(p) == 0 {
		return 0, status.OK()
	}
	if c.sess != nil {
		n, st := c.sess.Write(p)
		if st.OK() {
			c.sendMark = time.Now()
		}
		return n, st
	}
	n, err := sock.Send(c.handle, p)
	if err != nil {
		return 0, status.FromErrno(err, status.CodeWantWrite)
	}
	c.sendMark = time.Now()
	return n, status.OK()
}

// Recv performs at most one OS-level or TLS-engine read into p. Zero
// bytes with a peer-closing status is orderly end-of-stream; a
// would-block status must not be treated as EOF. Valid only while
// connected.
func (s Socket) Recv(p []byte) (int, status.Status) {
	c := s.c
	if c == nil || c.state != StateConnected {
		return 0, status.FromErrno(sock.ErrNotConn, status.CodeIO)
	}
	if c.sess != nil {
		n, st := c.sess.Read(p)
		if st.OK() && n > 0 {
			c.recvMark = time.Now()
		}
		return n, st
	}
	n, err := sock.Recv(c.handle, p)
	if err != nil {
		return 0, status.FromErrno(err, status.CodeWantRead)
	}
	if n == 0 {
		return 0, status.FromErrno(nil, status.CodePeerClosing)
	}
	c.recvMark = time.Now()
	return n, status.OK()
}

// RecvAppend reads one chunk of up to DefaultRecvSize bytes and
// appends it to buf, returning the bytes received.
func (s Socket) RecvAppend(buf *[]byte) (int, status.Status) {
	chunk := chunkPool.Get().(*[]byte)
	defer chunkPool.Put(chunk)
	n, st := s.Recv(*chunk)
	if n > 0 {
		*buf = append(*buf, (*chunk)[:n]...)
	}
	return n, st
}

// Disconnect performs a clean close: the TLS shutdown first (when a
// session exists), then the OS-level shutdown for the requested
// direction, then an unconditional release of the handle. A graceful
// close means both layers agree it is closed, so a TLS-shutdown
// failure takes precedence in the returned status. Calling Disconnect
// on an already-idle socket is a safe no-op.
//
// Unlike Close, Disconnect does not consult the reference count: it
// tears the shared connection down immediately, so every clone
// observes the idle state afterwards. Close is the lifetime release,
// Disconnect the protocol-level close.
func (s Socket) Disconnect(how CloseHow) status.Status {
	c := s.c
	if c == nil {
		return status.OK()
	}
	var tlsSt, tcpSt status.Status
	if c.state == StateConnected {
		if c.sess != nil {
			tlsSt = c.sess.Shutdown()
		}
		if err := sock.Shutdown(c.handle, how.sockHow()); err != nil {
			tcpSt = status.FromErrno(err, status.CodeIO)
		}
	}
	c.reset()
	if !tlsSt.OK() {
		return tlsSt
	}
	return tcpSt
}

// WaitEvent polls the socket once for the given readiness kind.
// Outcomes: OK (ready), the would-block status matching the event
// (timeout with no readiness), or an io-error (poll failure or an
// error condition on the socket). A connect-ready poll reporting
// hang-up and error together is classified as connection refused.
func (s Socket) WaitEvent(event Event, timeoutMs int) status.Status {
	c := s.c
	if c == nil || c.handle == sock.Invalid {
		return status.FromErrno(sock.ErrNotSock, status.CodeIO)
	}
	res, err := sock.Poll(c.handle, event.pollOut(), timeoutMs)
	if err != nil {
		return status.FromErrno(err, event.hint())
	}
	return classifyPoll(event, res)
}

var errPollCondition = errors.New("error condition reported by poll")

// classifyPoll maps one poll outcome to a status. Hang-up still counts
// as readable or writable so a final read can drain buffered data, but
// an error condition with no readiness at all is a connection failure,
// never a timeout.
func classifyPoll(event Event, res sock.PollResult) status.Status {
	if res.TimedOut {
		return status.FromErrno(sock.ErrWouldBlock, event.hint())
	}
	if event == EventConnectReady && res.Hup && res.Err {
		return status.IOError(sock.ErrConnRefused)
	}
	if res.Err && !res.In && !res.Out && !res.Hup {
		return status.IOError(errPollCondition)
	}
	if res.In || res.Out || res.Hup {
		return status.OK()
	}
	return status.FromErrno(sock.ErrWouldBlock, event.hint())
}

// create allocates the OS handle and, when the socket is bound to a
// TLS context, the per-connection session. Idle → Created.
func (c *conn) create(addr ip.Address) status.Status {
	h, err := sock.New(addr.Family() == ip.FamilyIPv6)
	if err != nil {
		return status.FromErrno(err, status.CodeIO)
	}
	c.handle = h
	c.mode = Blocking
	c.moveTo(StateCreated)
	if c.tctx != nil {
		sess, st := c.tctx.NewSession(h)
		if !st.OK() {
			return st
		}
		c.sess = sess
	}
	return status.OK()
}

// driveConnect advances a client-side TLS handshake. Would-block keeps
// the socket connecting; a fatal outcome closes it.
func (c *conn) driveConnect() status.Status {
	st := c.sess.Handshake()
	if st.OK() {
		c.moveTo(StateConnected)
		log.Debug("tls connected", zap.Uint64("uid", c.uid))
		return st
	}
	if st.WouldBlock() {
		return st
	}
	log.Debug("tls connect failed", zap.Uint64("uid", c.uid), zap.String("reason", st.Reason()))
	c.reset()
	return st
}

// driveAccept advances the pending child's server-side handshake. A
// failure destroys the child and returns the listener to StateListening;
// a bad client must not stop the listener.
func (c *conn) driveAccept() (Socket, status.Status) {
	child := c.pending
	st := child.sess.Handshake()
	if st.WouldBlock() {
		return Socket{}, st
	}
	c.pending = nil
	c.moveTo(StateListening)
	if !st.OK() {
		log.Debug("tls accept failed", zap.Uint64("uid", child.uid), zap.String("reason", st.Reason()))
		child.reset()
		return Socket{}, st
	}
	child.moveTo(StateConnected)
	log.Debug("tls accepted", zap.Uint64("uid", child.uid))
	return Socket{c: child}, status.OK()
}

// setMode toggles non-blocking mode on the handle, updating the cached
// mode only on success.
func (c *conn) setMode(mode Mode) status.Status {
	if err := sock.SetNonblock(c.handle, mode == NonBlocking); err != nil {
		return status.FromErrno(err, status.CodeIO)
	}
	c.mode = mode
	return status.OK()
}

// reset releases the handle and session and returns the conn to idle.
// Used by every failure path and by the final Close; it does not touch
// the reference count.
func (c *conn) reset() status.Status {
	var st status.Status
	if c.sess != nil {
		c.sess.Close()
		c.sess = nil
	}
	if c.handle != sock.Invalid {
		if err := sock.Close(c.handle); err != nil {
			st = status.FromErrno(err, status.CodeIO)
		}
		c.handle = sock.Invalid
	}
	if c.pending != nil {
		c.pending.reset()
		c.pending = nil
	}
	c.uid = 0
	c.mode = Blocking
	c.state = StateIdle
	return st
}

// moveTo applies a state transition, logging any violation of the
// transition table. State checks at the operation entry points keep
// this from firing; it is the backstop, not the gate.
func (c *conn) moveTo(next State) {
	if !canTransition(c.state, next) {
		log.Error("illegal state transition",
			zap.String("from", c.state.String()),
			zap.String("to", next.String()))
	}
	c.state = next
}
