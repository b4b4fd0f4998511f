// Package socket provides TCP connections and listeners with optional
// transparent TLS, usable in blocking and non-blocking modes, with a
// unified status model across POSIX and Winsock and a single-socket
// readiness-wait primitive. It is the transport foundation for network
// clients and servers that must handle partial I/O, would-block
// conditions, and disconnects uniformly. It is not an event loop;
// multiplexing many sockets is the consumer's responsibility.
//
// Every operation is synchronous on the calling goroutine. Nothing
// here retries: a would-block status must be answered by the caller
// with WaitEvent and a re-issue of the same operation with the same
// arguments. A TLS operation that reported would-block stays parked
// internally until it is re-issued or the socket is closed.
//
// Concurrency rules (caller-enforced preconditions, not runtime
// checks):
//
//   - No two goroutines may concurrently invoke state-mutating
//     operations (Connect, Accept, Send, Recv, Disconnect, SetMode) on
//     the same Socket or its clones. Clone extends lifetime only.
//   - Closing a socket from another owner while an operation is
//     blocked inside an OS call is prohibited; the behavior is
//     undefined.
//   - A tls.Context is read-only after construction and may be shared
//     freely to create sessions for many sockets.
//
// License: MIT
package socket
