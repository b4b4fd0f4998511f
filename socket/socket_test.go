// License: MIT

package socket_test

import (
	"testing"

	"github.com/rmgmachado/rmlib/ip"
	"github.com/rmgmachado/rmlib/socket"
)

func loopback(t *testing.T) ip.Address {
	t.Helper()
	addrs, st := ip.Resolve("127.0.0.1:0")
	if !st.OK() || len(addrs) == 0 {
		t.Fatalf("resolve loopback: %s", st.Reason())
	}
	return addrs[0]
}

func listenTCP(t *testing.T) (socket.Socket, ip.Address) {
	t.Helper()
	lst := socket.New()
	if st := lst.Listen(loopback(t), socket.Blocking, 0); !st.OK() {
		t.Fatalf("listen: %s", st.Reason())
	}
	la, st := lst.LocalAddr()
	if !st.OK() {
		t.Fatalf("local addr: %s", st.Reason())
	}
	return lst, la
}

// TestSendRecvNotConnected verifies send and receive are rejected
// before a connection exists, without reaching the OS.
func TestSendRecvNotConnected(t *testing.T) {
	s := socket.New()
	defer s.Close()

	if _, st := s.Send([]byte("x")); st.OK() || st.WouldBlock() {
		t.Error("send on idle socket must fail with not-connected")
	}
	n, st := s.Recv(make([]byte, 16))
	if st.OK() || st.WouldBlock() || n != 0 {
		t.Error("recv on idle socket must fail with not-connected")
	}
	if st.Reason() == "" {
		t.Error("failure reason must not be empty")
	}
}

// TestDisconnectIdempotent verifies disconnect on an idle socket is a
// safe no-op, twice.
func TestDisconnectIdempotent(t *testing.T) {
	s := socket.New()
	if st := s.Disconnect(socket.CloseBoth); !st.OK() {
		t.Errorf("first disconnect: %s", st.Reason())
	}
	if st := s.Disconnect(socket.CloseBoth); !st.OK() {
		t.Errorf("second disconnect: %s", st.Reason())
	}
	if s.State() != socket.StateIdle {
		t.Errorf("expected idle, got %v", s.State())
	}
}

// TestListenRejectsNonIdle verifies listen is rejected once the socket
// left idle.
func TestListenRejectsNonIdle(t *testing.T) {
	lst, la := listenTCP(t)
	defer lst.Close()

	if st := lst.Listen(la, socket.Blocking, 0); st.OK() {
		t.Error("second listen must be rejected")
	}
	if lst.State() != socket.StateListening {
		t.Errorf("listener state disturbed: %v", lst.State())
	}
}

// TestConnectRejectsNonIdle verifies connect on a listening socket is
// rejected as already-in-progress.
func TestConnectRejectsNonIdle(t *testing.T) {
	lst, la := listenTCP(t)
	defer lst.Close()

	if st := lst.Connect(la, socket.Blocking); st.OK() {
		t.Error("connect on listening socket must be rejected")
	}
}

// TestAcceptRequiresListening verifies accept is rejected outside the
// listening and accepting states.
func TestAcceptRequiresListening(t *testing.T) {
	s := socket.New()
	defer s.Close()
	if _, st := s.Accept(socket.Blocking); st.OK() {
		t.Error("accept on idle socket must be rejected")
	}
}

// TestUIDMonotonic verifies connection identifiers increase and are
// not reused.
func TestUIDMonotonic(t *testing.T) {
	a, _ := listenTCP(t)
	b, _ := listenTCP(t)
	defer a.Close()
	defer b.Close()

	if a.UID() == 0 || b.UID() == 0 {
		t.Fatal("uid must be assigned on listen")
	}
	if b.UID() <= a.UID() {
		t.Errorf("uid not monotonic: %d then %d", a.UID(), b.UID())
	}
}

// TestCloneSharesHandle verifies clones extend lifetime: closing one
// owner leaves the handle open, closing the last releases it.
func TestCloneSharesHandle(t *testing.T) {
	lst, _ := listenTCP(t)
	clone := lst.Clone()

	if st := lst.Close(); !st.OK() {
		t.Fatalf("close: %s", st.Reason())
	}
	if clone.State() != socket.StateListening {
		t.Fatal("clone must keep the handle alive")
	}
	if st := clone.WaitEvent(socket.EventAcceptReady, socket.WaitNever); st.OK() == st.WouldBlock() {
		t.Error("clone handle must still be pollable")
	}
	if st := clone.Close(); !st.OK() {
		t.Fatalf("final close: %s", st.Reason())
	}
	if clone.State() != socket.StateIdle {
		t.Error("last close must return the socket to idle")
	}
}

// TestDisconnectAppliesToClones verifies Disconnect tears the shared
// connection down immediately rather than waiting for the last owner:
// after one owner disconnects, every clone is idle.
func TestDisconnectAppliesToClones(t *testing.T) {
	lst, la := listenTCP(t)
	defer lst.Close()

	accepted := make(chan socket.Socket, 1)
	go func() {
		child, st := lst.Accept(socket.Blocking)
		if st.OK() {
			accepted <- child
		}
	}()

	cli := socket.New()
	if st := cli.Connect(la, socket.Blocking); !st.OK() {
		t.Fatalf("connect: %s", st.Reason())
	}
	peer := <-accepted
	defer peer.Disconnect(socket.CloseBoth)

	clone := cli.Clone()
	if st := cli.Disconnect(socket.CloseBoth); !st.OK() {
		t.Fatalf("disconnect: %s", st.Reason())
	}
	if clone.State() != socket.StateIdle {
		t.Errorf("clone must observe the teardown, got %v", clone.State())
	}
	if _, st := clone.Send([]byte("x")); st.OK() {
		t.Error("send through a clone after disconnect must fail")
	}
	clone.Close()
	cli.Close()
}

// TestSetModeRequiresHandle verifies mode toggling is rejected before
// a handle exists.
func TestSetModeRequiresHandle(t *testing.T) {
	s := socket.New()
	if st := s.SetMode(socket.NonBlocking); st.OK() {
		t.Error("mode toggle without a handle must fail")
	}
	if s.Mode() != socket.Blocking {
		t.Error("cached mode must be preserved on failure")
	}
}

// TestWaitEventAcceptReady verifies the three wait outcomes on a
// listener: timeout with no client, readiness once one connects, and
// failure without a handle.
func TestWaitEventAcceptReady(t *testing.T) {
	lst, la := listenTCP(t)
	defer lst.Close()

	st := lst.WaitEvent(socket.EventAcceptReady, socket.WaitNever)
	if !st.WouldBlock() || !st.WantRead() {
		t.Errorf("expected would-block-read on empty backlog, got %v", st.Code())
	}

	cli := socket.New()
	if st := cli.Connect(la, socket.Blocking); !st.OK() {
		t.Fatalf("connect: %s", st.Reason())
	}
	defer cli.Disconnect(socket.CloseBoth)

	if st := lst.WaitEvent(socket.EventAcceptReady, 5000); !st.OK() {
		t.Fatalf("expected accept readiness: %s", st.Reason())
	}
	child, st := lst.Accept(socket.Blocking)
	if !st.OK() {
		t.Fatalf("accept: %s", st.Reason())
	}
	child.Disconnect(socket.CloseBoth)

	idle := socket.New()
	if st := idle.WaitEvent(socket.EventRecvReady, socket.WaitNever); st.OK() || st.WouldBlock() {
		t.Error("wait on idle socket must fail")
	}
}

// TestStateStrings keeps the diagnostic names stable.
func TestStateStrings(t *testing.T) {
	cases := map[socket.State]string{
		socket.StateIdle:       "idle",
		socket.StateCreated:    "created",
		socket.StateConnecting: "connecting",
		socket.StateConnected:  "connected",
		socket.StateListening:  "listening",
		socket.StateAccepting:  "accepting",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
