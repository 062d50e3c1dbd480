// Package reactor defines the readiness-watcher contract the pipe
// stream family consumes (spec §4.3, §6). It is split out from the
// root iostream package so that a concrete implementation (see
// internal/epollreactor) can depend on this package without creating
// an import cycle back through the stream types that consume it — the
// same reason znet itself kept its Poller interface (poller.go) in the
// same package as its FDOperator type but never let a concrete
// connection import a second poller implementation.
package reactor

import "time"

// Reactor is the abstract readiness watcher consumed by the pipe
// stream family. The reactor is assumed single-threaded and
// cooperative: a Watcher's callback runs between task steps, never
// reentrantly with the stream operation that armed it.
type Reactor interface {
	// Poll creates a read-readiness watcher for fd. cb fires at most
	// once per Listen call.
	Poll(fd int, cb Callback) Watcher
	// Await creates a write-readiness watcher for fd.
	Await(fd int, cb Callback) Watcher
}

// Callback is invoked by the reactor when a Watcher's listen completes,
// either because fd became ready or the listen timed out. expired is
// true only in the timeout case. At most one call per Listen; none if
// the watcher is cancelled or freed first.
type Callback func(fd int, expired bool, w Watcher)

// Watcher is an opaque handle for one descriptor and one direction
// (read or write readiness). A new Listen call supersedes any prior
// arming; Listen is not cumulative.
type Watcher interface {
	// Listen arms the watcher. timeout == 0 waits indefinitely for
	// readiness; timeout > 0 fires the callback with expired=true if it
	// elapses first.
	Listen(timeout time.Duration)
	// IsPending reports whether a Listen call is currently armed and
	// has not yet fired.
	IsPending() bool
	// Cancel disarms the watcher without firing its callback.
	Cancel()
	// Free permanently releases the watcher; it must not be reused
	// after Free.
	Free()
}
