// Package status unifies OS socket errors, would-block conditions, and
// TLS engine outcomes into one result type. Every fallible operation in
// rmlib returns a Status; the caller decides whether to retry, wait for
// readiness, or abort. The model only classifies; it never retries.
//
// License: MIT

package status

import (
	"github.com/rmgmachado/rmlib/internal/sock"
)

// Code classifies an operation outcome.
type Code int

const (
	// CodeNone means the operation succeeded.
	CodeNone Code = iota
	// CodePeerClosing means the remote side performed an orderly shutdown.
	CodePeerClosing
	// CodeWantRead means the operation must be retried once the socket
	// is readable.
	CodeWantRead
	// CodeWantWrite means the operation must be retried once the socket
	// is writable.
	CodeWantWrite
	// CodeIO is an OS-level failure, usually fatal to the connection.
	CodeIO
	// CodeFatal is a TLS-layer failure: bad handshake, certificate
	// rejection, protocol violation.
	CodeFatal
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodePeerClosing:
		return "peer-closing"
	case CodeWantRead:
		return "would-block-read"
	case CodeWantWrite:
		return "would-block-write"
	case CodeIO:
		return "io-error"
	case CodeFatal:
		return "fatal"
	}
	return "unknown"
}

const okReason = "no error detected"

// fallback for a fatal status constructed without an engine message;
// Reason must never be empty when the status is not OK.
const fatalReason = "TLS engine failure"

// Status is the outcome of one socket, address, or TLS operation. The
// zero value is success. A Status is constructed fresh per operation
// and never shared.
type Status struct {
	code   Code
	err    error
	reason string
}

// OK constructs a success status. Equivalent to the zero value.
func OK() Status {
	return Status{}
}

// PeerClosing constructs the orderly-remote-shutdown status.
func PeerClosing() Status {
	return Status{code: CodePeerClosing}
}

// WouldBlockRead constructs the retry-after-readable status.
func WouldBlockRead() Status {
	return Status{code: CodeWantRead, err: sock.ErrWouldBlock}
}

// WouldBlockWrite constructs the retry-after-writable status.
func WouldBlockWrite() Status {
	return Status{code: CodeWantWrite, err: sock.ErrWouldBlock}
}

// IOError constructs an OS-level failure status carrying the raw error.
func IOError(err error) Status {
	if err == nil {
		return Status{}
	}
	return Status{code: CodeIO, err: err}
}

// Fatal constructs a TLS-layer failure status. The reason is sourced
// from the engine's error output and is surfaced verbatim by Reason.
func Fatal(reason string) Status {
	if reason == "" {
		reason = fatalReason
	}
	return Status{code: CodeFatal, reason: reason}
}

// FromErrno classifies a raw OS error according to an operation hint.
// A nil error is success, unless the hint is CodePeerClosing (zero-byte
// read). A would-block errno takes the hinted would-block code when the
// hint names one; everything else is an io-error.
func FromErrno(err error, hint Code) Status {
	if err == nil {
		if hint == CodePeerClosing {
			return Status{code: CodePeerClosing}
		}
		return Status{}
	}
	if sock.IsWouldBlock(err) && (hint == CodeWantRead || hint == CodeWantWrite) {
		return Status{code: hint, err: err}
	}
	return Status{code: CodeIO, err: err}
}

// Code returns the classification.
func (s Status) Code() Code {
	return s.code
}

// OK reports success.
func (s Status) OK() bool {
	return s.code == CodeNone
}

// WouldBlock reports whether the operation should be retried after a
// successful readiness wait.
func (s Status) WouldBlock() bool {
	return s.code == CodeWantRead || s.code == CodeWantWrite
}

// WantRead reports the would-block-read classification.
func (s Status) WantRead() bool {
	return s.code == CodeWantRead
}

// WantWrite reports the would-block-write classification.
func (s Status) WantWrite() bool {
	return s.code == CodeWantWrite
}

// PeerClosed reports an orderly remote shutdown.
func (s Status) PeerClosed() bool {
	return s.code == CodePeerClosing
}

// IsFatal reports a TLS-layer failure.
func (s Status) IsFatal() bool {
	return s.code == CodeFatal
}

// Errno returns the raw OS error, or nil when none was recorded.
func (s Status) Errno() error {
	return s.err
}

// Reason renders a human-readable explanation. Fatal statuses carry the
// engine's message; OS-classified statuses render through the OS
// error-string facility; success yields a fixed message. Never empty.
func (s Status) Reason() string {
	switch {
	case s.code == CodeNone:
		return okReason
	case s.code == CodeFatal:
		return s.reason
	case s.err != nil:
		return s.err.Error()
	case s.code == CodePeerClosing:
		return "connection closing by peer"
	}
	return s.code.String()
}
