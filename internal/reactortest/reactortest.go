// Package reactortest provides a synchronous, manually-driven
// reactor.Reactor for tests (spec "TESTABLE PROPERTIES", SPEC_FULL.md
// ambient test tooling). It is grounded on the teacher's own test idiom
// of wiring a fake Poller instead of a live epoll fd — but since no
// test file in the pack exercised the teacher's Poller directly, this
// package is built from the reactor.Reactor/reactor.Watcher contract
// itself rather than any one teacher file: a deterministic in-memory
// stand-in for epollreactor.Reactor that never touches a real
// descriptor.
package reactortest

import (
	"sync"
	"time"

	"github.com/zhihanii/iostream/reactor"
)

// Reactor is a fake reactor.Reactor. Readiness is signalled explicitly
// by test code via Ready/Expire instead of epoll, so tests can drive a
// pipe's suspend/resume transitions without a real socket pair.
type Reactor struct {
	mu       sync.Mutex
	watchers map[int]map[bool]*Watcher // fd -> (isWrite -> watcher)
}

// New returns an empty fake reactor.
func New() *Reactor {
	return &Reactor{watchers: make(map[int]map[bool]*Watcher)}
}

func (r *Reactor) Poll(fd int, cb reactor.Callback) reactor.Watcher {
	return r.register(fd, false, cb)
}

func (r *Reactor) Await(fd int, cb reactor.Callback) reactor.Watcher {
	return r.register(fd, true, cb)
}

func (r *Reactor) register(fd int, isWrite bool, cb reactor.Callback) *Watcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	byDir, ok := r.watchers[fd]
	if !ok {
		byDir = make(map[bool]*Watcher)
		r.watchers[fd] = byDir
	}
	w := &Watcher{r: r, fd: fd, isWrite: isWrite, cb: cb}
	byDir[isWrite] = w
	return w
}

// Ready fires the callback for fd's given direction as if the
// descriptor became ready, provided a Listen is currently pending.
// Reports whether a pending watcher was found and fired.
func (r *Reactor) Ready(fd int, isWrite bool) bool {
	w := r.lookup(fd, isWrite)
	if w == nil {
		return false
	}
	return w.fire(false)
}

// Expire fires fd's watcher as if its Listen timeout elapsed.
func (r *Reactor) Expire(fd int, isWrite bool) bool {
	w := r.lookup(fd, isWrite)
	if w == nil {
		return false
	}
	return w.fire(true)
}

func (r *Reactor) lookup(fd int, isWrite bool) *Watcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	byDir, ok := r.watchers[fd]
	if !ok {
		return nil
	}
	return byDir[isWrite]
}

// Watcher is a fake reactor.Watcher driven by test code instead of
// epoll readiness.
type Watcher struct {
	r       *Reactor
	fd      int
	isWrite bool

	mu      sync.Mutex
	cb      reactor.Callback
	pending bool
	freed   bool
}

func (w *Watcher) Listen(_ time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.freed {
		return
	}
	w.pending = true
}

func (w *Watcher) IsPending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

func (w *Watcher) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = false
}

func (w *Watcher) Free() {
	w.mu.Lock()
	w.freed = true
	w.pending = false
	w.mu.Unlock()

	w.r.mu.Lock()
	if byDir, ok := w.r.watchers[w.fd]; ok {
		if byDir[w.isWrite] == w {
			delete(byDir, w.isWrite)
		}
		if len(byDir) == 0 {
			delete(w.r.watchers, w.fd)
		}
	}
	w.r.mu.Unlock()
}

func (w *Watcher) fire(expired bool) bool {
	w.mu.Lock()
	if !w.pending {
		w.mu.Unlock()
		return false
	}
	w.pending = false
	cb := w.cb
	w.mu.Unlock()

	cb(w.fd, expired, w)
	return true
}
