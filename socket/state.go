// License: MIT

package socket

import (
	"github.com/rmgmachado/rmlib/internal/sock"
	"github.com/rmgmachado/rmlib/status"
)

// State is the connection state of a Socket.
type State int

const (
	// StateIdle: no OS handle; the terminal and initial state.
	StateIdle State = iota
	// StateCreated: OS handle allocated, not yet connected or listening.
	StateCreated
	// StateConnecting: TLS handshake in progress on a connect path.
	StateConnecting
	// StateConnected: application data may flow.
	StateConnected
	// StateListening: passive socket accepting connections.
	StateListening
	// StateAccepting: server-side TLS handshake in progress for a
	// pending accepted child; the listener returns to StateListening
	// once it completes or fails.
	StateAccepting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateListening:
		return "listening"
	case StateAccepting:
		return "accepting"
	}
	return "invalid"
}

// transitions is the single authority on legal state changes; moveTo
// consults it so illegal transitions cannot be introduced piecemeal.
var transitions = map[State][]State{
	StateIdle:       {StateCreated},
	StateCreated:    {StateConnecting, StateConnected, StateListening, StateIdle},
	StateConnecting: {StateConnected, StateIdle},
	StateConnected:  {StateIdle},
	StateListening:  {StateAccepting, StateIdle},
	StateAccepting:  {StateListening, StateIdle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Mode selects blocking or non-blocking socket operation.
type Mode int

const (
	// Blocking sockets suspend the calling thread inside OS calls.
	Blocking Mode = iota
	// NonBlocking sockets return would-block statuses instead.
	NonBlocking
)

func (m Mode) String() string {
	if m == NonBlocking {
		return "nonblocking"
	}
	return "blocking"
}

// CloseHow selects the direction(s) shut down by Disconnect.
type CloseHow int

const (
	// CloseSend shuts down the send direction.
	CloseSend CloseHow = iota
	// CloseRecv shuts down the receive direction.
	CloseRecv
	// CloseBoth shuts down both directions.
	CloseBoth
)

func (h CloseHow) sockHow() sock.How {
	switch h {
	case CloseRecv:
		return sock.HowRecv
	case CloseBoth:
		return sock.HowBoth
	}
	return sock.HowSend
}

// Event is the readiness kind passed to WaitEvent.
type Event int

const (
	// EventRecvReady: the socket can be read without blocking.
	EventRecvReady Event = iota
	// EventSendReady: the socket can be written without blocking.
	EventSendReady
	// EventConnectReady: a pending connect has resolved.
	EventConnectReady
	// EventAcceptReady: a connection is waiting to be accepted.
	EventAcceptReady
)

func (e Event) String() string {
	switch e {
	case EventRecvReady:
		return "recv-ready"
	case EventSendReady:
		return "send-ready"
	case EventConnectReady:
		return "connect-ready"
	case EventAcceptReady:
		return "accept-ready"
	}
	return "unknown"
}

// pollOut reports whether the event polls for writability.
func (e Event) pollOut() bool {
	return e == EventSendReady || e == EventConnectReady
}

// hint is the would-block classification matching the event kind.
func (e Event) hint() status.Code {
	if e.pollOut() {
		return status.CodeWantWrite
	}
	return status.CodeWantRead
}
