// License: MIT

package status_test

import (
	"testing"

	"github.com/rmgmachado/rmlib/internal/sock"
	"github.com/rmgmachado/rmlib/status"
)

// TestZeroValueIsSuccess verifies the zero value and OK constructor
// both report success with the fixed no-error reason.
func TestZeroValueIsSuccess(t *testing.T) {
	var zero status.Status
	if !zero.OK() {
		t.Error("zero value should be OK")
	}
	if zero.Reason() != "no error detected" {
		t.Errorf("unexpected reason: %q", zero.Reason())
	}
	if st := status.OK(); !st.OK() || st.Code() != status.CodeNone {
		t.Error("OK() should classify as CodeNone")
	}
}

// TestFromErrnoNil verifies a nil error yields success for any hint
// except the peer-closing hint.
func TestFromErrnoNil(t *testing.T) {
	if st := status.FromErrno(nil, status.CodeIO); !st.OK() {
		t.Error("nil error with io hint should be OK")
	}
	if st := status.FromErrno(nil, status.CodeWantRead); !st.OK() {
		t.Error("nil error with read hint should be OK")
	}
	st := status.FromErrno(nil, status.CodePeerClosing)
	if st.OK() || !st.PeerClosed() {
		t.Errorf("nil error with closing hint should classify peer-closing, got %v", st.Code())
	}
	if st.Reason() == "" {
		t.Error("reason must never be empty when not OK")
	}
}

// TestFromErrnoWouldBlock verifies the would-block errno follows the
// operation hint.
func TestFromErrnoWouldBlock(t *testing.T) {
	st := status.FromErrno(sock.ErrWouldBlock, status.CodeWantRead)
	if st.OK() || !st.WouldBlock() || !st.WantRead() || st.WantWrite() {
		t.Errorf("read hint should classify would-block-read, got %v", st.Code())
	}
	st = status.FromErrno(sock.ErrWouldBlock, status.CodeWantWrite)
	if st.OK() || !st.WouldBlock() || !st.WantWrite() || st.WantRead() {
		t.Errorf("write hint should classify would-block-write, got %v", st.Code())
	}
	// Without a would-block hint the errno is an io-error.
	st = status.FromErrno(sock.ErrWouldBlock, status.CodeIO)
	if st.WouldBlock() || st.Code() != status.CodeIO {
		t.Errorf("io hint should classify io-error, got %v", st.Code())
	}
}

// TestFromErrnoIO verifies plain errnos classify as io-error and keep
// the raw error reachable.
func TestFromErrnoIO(t *testing.T) {
	st := status.FromErrno(sock.ErrNotConn, status.CodeWantRead)
	if st.Code() != status.CodeIO {
		t.Errorf("expected io-error, got %v", st.Code())
	}
	if st.Errno() == nil {
		t.Error("raw error should be recorded")
	}
	if st.Reason() == "" {
		t.Error("reason must render the OS error string")
	}
}

// TestFatal verifies fatal statuses carry the engine message and never
// render empty.
func TestFatal(t *testing.T) {
	st := status.Fatal("handshake failure: certificate rejected")
	if st.OK() || !st.IsFatal() {
		t.Error("Fatal should classify CodeFatal")
	}
	if st.Reason() != "handshake failure: certificate rejected" {
		t.Errorf("unexpected reason: %q", st.Reason())
	}
	if status.Fatal("").Reason() == "" {
		t.Error("fatal reason must have a fallback")
	}
}

// TestWouldBlockConstructors verifies the explicit would-block
// constructors match their predicates.
func TestWouldBlockConstructors(t *testing.T) {
	if st := status.WouldBlockRead(); !st.WantRead() || !st.WouldBlock() || st.OK() {
		t.Error("WouldBlockRead misclassified")
	}
	if st := status.WouldBlockWrite(); !st.WantWrite() || !st.WouldBlock() || st.OK() {
		t.Error("WouldBlockWrite misclassified")
	}
}

// TestIOErrorNil verifies a nil error degrades to success rather than
// inventing a failure.
func TestIOErrorNil(t *testing.T) {
	if st := status.IOError(nil); !st.OK() {
		t.Error("IOError(nil) should be OK")
	}
}

func TestCodeStrings(t *testing.T) {
	cases := map[status.Code]string{
		status.CodeNone:        "none",
		status.CodePeerClosing: "peer-closing",
		status.CodeWantRead:    "would-block-read",
		status.CodeWantWrite:   "would-block-write",
		status.CodeIO:          "io-error",
		status.CodeFatal:       "fatal",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", code, got, want)
		}
	}
}
