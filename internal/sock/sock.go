// Package sock is the platform syscall shim for the rmlib socket layer.
// It unifies the POSIX and Winsock surfaces behind one descriptor type,
// one poll call, and one errno vocabulary.
//
// License: MIT

package sock

import (
	"os"
)

// How selects the direction(s) shut down by Shutdown.
type How int

const (
	// HowSend shuts down the send direction (SHUT_WR / SD_SEND).
	HowSend How = iota
	// HowRecv shuts down the receive direction (SHUT_RD / SD_RECEIVE).
	HowRecv
	// HowBoth shuts down both directions (SHUT_RDWR / SD_BOTH).
	HowBoth
)

// PollResult reports the outcome of a single-descriptor Poll call.
// TimedOut is set when the timeout expired with no readiness; the
// remaining flags mirror the revents bits reported by the OS.
type PollResult struct {
	TimedOut bool
	In       bool
	Out      bool
	Err      bool
	Hup      bool
}

// Hostname returns the local host name.
func Hostname() (string, error) {
	return os.Hostname()
}
