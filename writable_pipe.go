package iostream

import (
	"sync"
	"time"

	"github.com/zhihanii/iostream/errs"
	"github.com/zhihanii/iostream/internal/descriptor"
	"github.com/zhihanii/iostream/reactor"
)

// writePipeTicket is the ordered write descriptor from spec §4.7 and
// the glossary's "Ticket" entry: (remaining, written-so-far, timeout,
// wake). An empty remaining with written==0 represents an Await()
// ticket (spec §4.7, "Await").
type writePipeTicket struct {
	remaining []byte
	written   int
	timeout   time.Duration
	wake      *wakeHandle
	end       bool
}

// WritablePipe is the non-blocking write half of a descriptor-backed
// stream. Grounded on connection.go's flush/outputAck/rw2r trio, but
// generalized into an explicit FIFO ticket queue instead of a single
// outputBuffer, since this package exposes write() as a direct API
// (spec §4.7) rather than hiding it behind a buffered Writer.
type WritablePipe struct {
	fd        int
	react     reactor.Reactor
	watcher   reactor.Watcher
	autoClose bool
	chunkSize int

	mu       sync.Mutex
	queue    []*writePipeTicket
	open     bool
	writable bool
}

// NewWritablePipe wraps fd (already non-blocking) in a writable pipe
// driven by r.
func NewWritablePipe(fd int, r reactor.Reactor, autoClose bool) *WritablePipe {
	return newWritablePipe(fd, r, autoClose, chunkSize)
}

func newWritablePipe(fd int, r reactor.Reactor, autoClose bool, chunk int) *WritablePipe {
	p := &WritablePipe{
		fd:        fd,
		react:     r,
		autoClose: autoClose,
		chunkSize: chunk,
		open:      true,
		writable:  true,
	}
	p.watcher = r.Await(fd, p.onReady)
	return p
}

func (p *WritablePipe) Resource() int { return p.fd }

func (p *WritablePipe) IsWritable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writable
}

func (p *WritablePipe) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *WritablePipe) Rebind(r reactor.Reactor) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	wasPending := p.watcher != nil && p.watcher.IsPending()
	if p.watcher != nil {
		p.watcher.Free()
	}
	p.react = r
	p.watcher = r.Await(p.fd, p.onReady)
	if wasPending {
		p.watcher.Listen(0)
	}
	return nil
}

// Write implements Writable.
func (p *WritablePipe) Write(data []byte, timeout time.Duration) (int, error) {
	return p.send(data, timeout, false)
}

// End implements Writable: marks the pipe unwritable immediately, then
// closes once the write (and anything queued ahead of it) completes.
func (p *WritablePipe) End(data []byte, timeout time.Duration) (int, error) {
	return p.send(data, timeout, true)
}

// Await queues an empty ticket that resolves with 0 once the
// descriptor is write-ready, or the queue ahead of it drains (spec
// §4.7, the explicit backpressure-empty signal).
func (p *WritablePipe) Await(timeout time.Duration) (int, error) {
	p.mu.Lock()
	if !p.writable {
		p.mu.Unlock()
		return 0, errs.New(errs.KindUnwritable, "pipe is not writable", nil)
	}
	ticket := &writePipeTicket{timeout: timeout, wake: newWakeHandle()}
	first := len(p.queue) == 0
	p.queue = append(p.queue, ticket)
	if first {
		p.watcher.Listen(timeout)
	}
	p.mu.Unlock()

	res := ticket.wake.waitForever()
	return res.n, res.err
}

func (p *WritablePipe) send(data []byte, timeout time.Duration, end bool) (int, error) {
	p.mu.Lock()
	if !p.writable {
		p.mu.Unlock()
		return 0, errs.New(errs.KindUnwritable, "pipe is not writable", nil)
	}
	if end {
		p.writable = false
	}

	if len(p.queue) == 0 {
		attemptLen := len(data)
		if attemptLen > p.chunkSize {
			attemptLen = p.chunkSize
		}
		n, werr := descriptor.Write(p.fd, data[:attemptLen])
		switch {
		case descriptor.IsWouldBlock(werr):
			n = 0
		case werr != nil:
			cause := errs.New(errs.KindFailure, "write failed", werr)
			p.mu.Unlock()
			p.freeWithCause(cause)
			return 0, cause
		}

		if n == len(data) {
			p.mu.Unlock()
			if end {
				p.finishEnd()
			}
			return n, nil
		}

		ticket := &writePipeTicket{remaining: data[n:], written: n, timeout: timeout, wake: newWakeHandle(), end: end}
		p.queue = append(p.queue, ticket)
		p.watcher.Listen(timeout)
		p.mu.Unlock()

		res := ticket.wake.waitForever()
		if end {
			p.finishEnd()
		}
		return res.n, res.err
	}

	// A prior ticket is queued: always queue, without a pre-write
	// attempt, so write order is preserved (spec §4.7).
	ticket := &writePipeTicket{remaining: data, written: 0, timeout: timeout, wake: newWakeHandle(), end: end}
	p.queue = append(p.queue, ticket)
	p.mu.Unlock()

	res := ticket.wake.waitForever()
	if end {
		p.finishEnd()
	}
	return res.n, res.err
}

// onReady is the reactor callback fired on write-readiness or timeout.
func (p *WritablePipe) onReady(_ int, expired bool, _ reactor.Watcher) {
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return
	}
	head := p.queue[0]
	p.queue = p.queue[1:]

	if expired {
		// Timeout applies only to the head ticket at arming time (spec
		// §4.7, §5).
		head.wake.resolve(nil, 0, errs.New(errs.KindTimeout, "write timed out", nil))
		p.mu.Unlock()
		p.freeWithCause(errs.New(errs.KindClosed, "pipe closed after write timeout", nil))
		return
	}

	if len(head.remaining) == 0 {
		head.wake.resolve(nil, head.written, nil)
	} else {
		attemptLen := len(head.remaining)
		if attemptLen > p.chunkSize {
			attemptLen = p.chunkSize
		}
		n, werr := descriptor.Write(p.fd, head.remaining[:attemptLen])
		switch {
		case descriptor.IsWouldBlock(werr):
			// push the ticket back unchanged; fall through to re-arm below.
			p.queue = append([]*writePipeTicket{head}, p.queue...)
		case werr != nil:
			cause := errs.New(errs.KindFailure, "write failed", werr)
			head.wake.resolve(nil, 0, cause)
			p.mu.Unlock()
			p.freeWithCause(cause)
			return
		case n == len(head.remaining):
			head.wake.resolve(nil, head.written+n, nil)
		default:
			next := &writePipeTicket{
				remaining: head.remaining[n:],
				written:   head.written + n,
				timeout:   head.timeout,
				wake:      head.wake,
				end:       head.end,
			}
			p.queue = append([]*writePipeTicket{next}, p.queue...)
		}
	}

	if len(p.queue) > 0 {
		p.watcher.Listen(p.queue[0].timeout)
	}
	p.mu.Unlock()
}

// finishEnd closes the pipe once the End()-triggered write has fully
// drained through the queue.
func (p *WritablePipe) finishEnd() {
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.closeLocked(nil)
	}
	p.mu.Unlock()
}

// freeWithCause tears the whole pipe down with cause — the Open
// Question resolution in SPEC_FULL.md §6.3: a failing or timed-out
// ticket frees the entire stream rather than only itself.
func (p *WritablePipe) freeWithCause(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked(cause)
}

// Close is idempotent and terminal.
func (p *WritablePipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked(nil)
	return nil
}

func (p *WritablePipe) closeLocked(cause error) {
	if !p.open {
		return
	}
	p.open = false
	p.writable = false
	if p.watcher != nil {
		p.watcher.Cancel()
		p.watcher.Free()
	}
	for _, t := range p.queue {
		t.wake.resolve(nil, 0, errs.New(errs.KindClosed, "pipe closed", cause))
	}
	p.queue = nil
	if p.autoClose {
		_ = descriptor.Close(p.fd)
	}
}
