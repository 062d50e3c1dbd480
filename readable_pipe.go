package iostream

import (
	"sync"
	"time"

	"github.com/zhihanii/iostream/errs"
	"github.com/zhihanii/iostream/internal/descriptor"
	"github.com/zhihanii/iostream/reactor"
)

// ReadablePipe is the non-blocking read half of a descriptor-backed
// stream (spec §4.6). It is grounded on connection.go's waitRead/fill
// pair: waitRead there parks on a channel until triggerRead fires (from
// either a successful inputAck or a close), exactly this type's
// read/onReady split, replayed against the abstract Reactor instead of
// a hardwired epoll Poller.
type ReadablePipe struct {
	fd        int
	react     reactor.Reactor
	watcher   reactor.Watcher
	autoClose bool
	chunkSize int

	opMu sync.Mutex // serializes Read calls: "new read waits for it" (spec §4.6)

	mu     sync.Mutex
	buffer *Buffer
	open   bool
	wake   *wakeHandle
}

// NewReadablePipe wraps fd (already non-blocking) in a readable pipe
// driven by r.
func NewReadablePipe(fd int, r reactor.Reactor, autoClose bool) *ReadablePipe {
	return newReadablePipe(fd, r, autoClose, chunkSize)
}

func newReadablePipe(fd int, r reactor.Reactor, autoClose bool, chunk int) *ReadablePipe {
	p := &ReadablePipe{
		fd:        fd,
		react:     r,
		autoClose: autoClose,
		chunkSize: chunk,
		buffer:    NewBuffer(),
		open:      true,
	}
	p.watcher = r.Poll(fd, p.onReady)
	return p
}

func (p *ReadablePipe) Resource() int { return p.fd }

func (p *ReadablePipe) IsReadable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Rebind replaces the watcher using the current reactor (spec §4.6,
// §9): used after the enclosing process switches reactors.
func (p *ReadablePipe) Rebind(r reactor.Reactor) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	wasPending := p.watcher != nil && p.watcher.IsPending()
	if p.watcher != nil {
		p.watcher.Free()
	}
	p.react = r
	p.watcher = r.Poll(p.fd, p.onReady)
	if wasPending {
		p.watcher.Listen(0)
	}
	return nil
}

// Read implements Readable.
func (p *ReadablePipe) Read(length int, stopByte []byte, timeout time.Duration) ([]byte, error) {
	if length < 0 {
		return nil, errs.New(errs.KindInvalidArgument, "negative length", nil)
	}
	if length == 0 {
		length = p.chunkSize
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return nil, errs.New(errs.KindUnreadable, "pipe is not readable", nil)
	}
	p.mu.Unlock()

	for {
		data, eof, err := p.fetch(length, stopByte)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			return data, nil
		}
		if eof {
			return []byte{}, nil
		}

		wake := newWakeHandle()
		p.mu.Lock()
		p.wake = wake
		p.mu.Unlock()
		p.watcher.Listen(timeout)

		res := wake.waitForever()
		if res.err != nil {
			return nil, res.err
		}
		// readiness fired (or a buffer already arrived via Unshift); loop
		// back to fetch.
	}
}

// fetch tops the internal buffer up from the descriptor with a single
// non-blocking read, then applies the extraction rule from spec §4.6.
// It is not itself suspendable.
func (p *ReadablePipe) fetch(length int, stopByte []byte) (data []byte, eof bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	need := length - p.buffer.Len()
	if need > 0 {
		tmp := make([]byte, need)
		n, rerr := descriptor.Read(p.fd, tmp)
		switch {
		case descriptor.IsWouldBlock(rerr):
			// no bytes available yet; not EOF, not failure.
		case rerr != nil:
			cause := errs.New(errs.KindFailure, "read failed", rerr)
			p.closeLocked(cause)
			return nil, false, cause
		case n == 0:
			// a zero-byte, no-error non-blocking read on a pipe/socket fd
			// means the peer closed (EOF), same rule as
			// connection.go's eofError: n==0 && err==nil => eof.
			if p.buffer.IsEmpty() {
				p.closeLocked(nil)
				return nil, true, nil
			}
		default:
			p.buffer.Push(tmp[:n])
		}
	}

	if b, ok := ResolveStopByte(stopByte); ok {
		if idx := p.buffer.Search(b); idx >= 0 {
			return p.buffer.Shift(idx + 1), false, nil
		}
	}
	if p.buffer.Len() <= length {
		return p.buffer.Drain(), false, nil
	}
	return p.buffer.Shift(length), false, nil
}

// Poll is a one-shot readiness wait that does not read bytes; it is
// only meaningful once the internal buffer has been drained (spec
// §4.6).
func (p *ReadablePipe) Poll(timeout time.Duration) error {
	p.mu.Lock()
	if !p.buffer.IsEmpty() {
		p.mu.Unlock()
		return errs.New(errs.KindFailure, "poll called with non-empty internal buffer", nil)
	}
	if !p.open {
		p.mu.Unlock()
		return errs.New(errs.KindUnreadable, "pipe is not readable", nil)
	}
	wake := newWakeHandle()
	p.wake = wake
	p.mu.Unlock()

	p.watcher.Listen(timeout)
	res := wake.waitForever()
	return res.err
}

// Unshift prepends data to the internal buffer, waking a parked read
// and cancelling the watcher (spec §4.6).
func (p *ReadablePipe) Unshift(data []byte) {
	p.mu.Lock()
	p.buffer.Unshift(data)
	wake := p.wake
	p.wake = nil
	p.mu.Unlock()

	if wake != nil {
		p.watcher.Cancel()
		wake.resolve(nil, 0, nil)
	}
}

func (p *ReadablePipe) onReady(_ int, expired bool, _ reactor.Watcher) {
	p.mu.Lock()
	wake := p.wake
	p.wake = nil
	p.mu.Unlock()
	if wake == nil {
		return
	}
	if expired {
		wake.resolve(nil, 0, errs.New(errs.KindTimeout, "read timed out", nil))
		return
	}
	wake.resolve(nil, 0, nil)
}

// Close is idempotent and terminal.
func (p *ReadablePipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked(nil)
	return nil
}

func (p *ReadablePipe) closeLocked(cause error) {
	if !p.open {
		return
	}
	p.open = false
	if p.watcher != nil {
		p.watcher.Cancel()
		p.watcher.Free()
	}
	if wake := p.wake; wake != nil {
		p.wake = nil
		if cause != nil {
			wake.resolve(nil, 0, errs.New(errs.KindClosed, "pipe closed", cause))
		} else {
			wake.resolve(nil, 0, errs.New(errs.KindClosed, "pipe closed", nil))
		}
	}
	if p.autoClose {
		_ = descriptor.Close(p.fd)
	}
}

func (p *ReadablePipe) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}
