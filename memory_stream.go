package iostream

import (
	"sync"
	"time"

	"github.com/zhihanii/iostream/errs"
)

// MemoryStream is the in-process duplex buffer (spec §4.4). It is
// grounded on connection.go's own read/write coordination idiom —
// waitRead parking on a channel until triggerRead fires, writes
// draining straight into a buffer — replayed without a descriptor or
// reactor underneath: everything here is served directly from the
// in-memory Buffer.
//
// Simultaneous reads are allowed and FIFO-queued (Open Question §9,
// resolved in SPEC_FULL.md §6.1): a second Read call while one is
// parked does not fail Busy, it joins the queue and is satisfied in
// issue order as soon as any bytes are buffered (a reader may receive
// fewer than the length it asked for).
type MemoryStream struct {
	mu sync.Mutex

	buf *Buffer
	hwm int

	open, readable, writable bool

	readQueue  []*pendingRead
	writeQueue []*writeTicket
}

type pendingRead struct {
	length   int
	stopByte []byte
	wake     *wakeHandle
}

type writeTicket struct {
	length int
	wake   *wakeHandle
}

// NewMemoryStream returns an open, readable, writable stream with the
// given high-water mark (0 = unlimited).
func NewMemoryStream(hwm int) *MemoryStream {
	return &MemoryStream{
		buf:      NewBuffer(),
		hwm:      hwm,
		open:     true,
		readable: true,
		writable: true,
	}
}

func (s *MemoryStream) IsReadable() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.readable }
func (s *MemoryStream) IsWritable() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.writable }
func (s *MemoryStream) IsOpen() bool     { s.mu.Lock(); defer s.mu.Unlock(); return s.open }

// Read implements Readable.
func (s *MemoryStream) Read(length int, stopByte []byte, timeout time.Duration) ([]byte, error) {
	if length < 0 {
		return nil, errs.New(errs.KindInvalidArgument, "negative length", nil)
	}

	s.mu.Lock()
	if !s.readable {
		s.mu.Unlock()
		return nil, errs.New(errs.KindUnreadable, "stream is not readable", nil)
	}
	req := &pendingRead{length: length, stopByte: stopByte, wake: newWakeHandle()}
	s.readQueue = append(s.readQueue, req)
	s.serveReaders()
	s.mu.Unlock()

	res, ok := req.wake.wait(timeout)
	if !ok {
		s.mu.Lock()
		queued := false
		for _, r := range s.readQueue {
			if r == req {
				queued = true
				break
			}
		}
		s.removeReader(req)
		s.mu.Unlock()
		if queued {
			return nil, errs.New(errs.KindTimeout, "read timed out", nil)
		}
		// Already dequeued and resolved before the timer won: take the
		// result so bytes extracted for this reader are not lost.
		res = req.wake.waitForever()
	}
	return res.data, res.err
}

// Write implements Writable.
func (s *MemoryStream) Write(data []byte, timeout time.Duration) (int, error) {
	return s.write(data, timeout, false)
}

// End implements Writable.
func (s *MemoryStream) End(data []byte, timeout time.Duration) (int, error) {
	return s.write(data, timeout, true)
}

func (s *MemoryStream) write(data []byte, timeout time.Duration, end bool) (int, error) {
	s.mu.Lock()
	if !s.writable {
		s.mu.Unlock()
		return 0, errs.New(errs.KindUnwritable, "stream is not writable", nil)
	}
	s.buf.Push(data)
	s.serveReaders()

	if end {
		if s.buf.IsEmpty() {
			s.closeLocked(nil)
		} else {
			s.writable = false
		}
	}

	length := len(data)
	if s.hwm > 0 && s.buf.Len() > s.hwm {
		ticket := &writeTicket{length: length, wake: newWakeHandle()}
		s.writeQueue = append(s.writeQueue, ticket)
		s.mu.Unlock()

		res, ok := ticket.wake.wait(timeout)
		if !ok {
			s.mu.Lock()
			s.removeTicket(ticket)
			s.mu.Unlock()
			return length, errs.New(errs.KindTimeout, "write timed out", nil)
		}
		if res.err != nil {
			return 0, res.err
		}
		return res.n, nil
	}
	s.mu.Unlock()
	return length, nil
}

// Unshift prepends data so it is returned before any bytes already
// queued behind it.
func (s *MemoryStream) Unshift(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Unshift(data)
	s.serveReaders()
}

// Close is idempotent and terminal (spec §4.4).
func (s *MemoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(nil)
	return nil
}

// CloseWithCause closes the stream, resolving any queued writers with
// a Closed error that wraps cause (errors.Is(err, cause) holds).
func (s *MemoryStream) CloseWithCause(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(cause)
}

func (s *MemoryStream) closeLocked(cause error) {
	if !s.open {
		return
	}
	s.open, s.readable, s.writable = false, false, false

	for _, r := range s.readQueue {
		r.wake.resolve(nil, 0, nil)
	}
	s.readQueue = nil

	err := cause
	if err == nil {
		err = errs.New(errs.KindClosed, "stream closed", nil)
	} else {
		err = errs.New(errs.KindClosed, "stream closed", cause)
	}
	for _, t := range s.writeQueue {
		t.wake.resolve(nil, 0, err)
	}
	s.writeQueue = nil
}

// serveReaders extracts bytes for queued readers for as long as the
// buffer has bytes and readers are waiting, then, if the buffer is now
// empty and the stream was ended, transitions to closed (spec §4.4).
// Must be called with s.mu held.
//
// Resolution happens synchronously, in the same call that extracts the
// bytes from s.buf: a reader's wait(timeout) races its own client-side
// timer against the wake channel (net_polldesc.go), so once bytes have
// been shifted out of the buffer on a reader's behalf they must reach
// that reader's channel before this function returns, where Read
// collects them even if its timer fired meanwhile. Dispatching the
// resolve through taskpool here would reopen that race — the timer
// could fire first, the read would return KindTimeout, and the bytes
// already removed from s.buf would sit orphaned in the buffered wake
// channel with no reader left to claim them.
func (s *MemoryStream) serveReaders() {
	for len(s.readQueue) > 0 && s.buf.Len() > 0 {
		req := s.readQueue[0]
		s.readQueue = s.readQueue[1:]
		data := extractPolicy(s.buf, req.length, req.stopByte)
		req.wake.resolve(data, 0, nil)
		s.releaseWritersIfBelowHWM()
	}
	if !s.writable && s.buf.IsEmpty() {
		s.closeLocked(nil)
	}
}

func (s *MemoryStream) releaseWritersIfBelowHWM() {
	if s.hwm <= 0 || len(s.writeQueue) == 0 {
		return
	}
	if s.buf.Len() > s.hwm {
		return
	}
	for _, t := range s.writeQueue {
		t.wake.resolve(nil, t.length, nil)
	}
	s.writeQueue = nil
}

func (s *MemoryStream) removeReader(req *pendingRead) {
	for i, r := range s.readQueue {
		if r == req {
			s.readQueue = append(s.readQueue[:i], s.readQueue[i+1:]...)
			return
		}
	}
}

func (s *MemoryStream) removeTicket(t *writeTicket) {
	for i, x := range s.writeQueue {
		if x == t {
			s.writeQueue = append(s.writeQueue[:i], s.writeQueue[i+1:]...)
			return
		}
	}
}

// extractPolicy implements the extraction rule from spec §4.4 for
// MemoryStream. ReadablePipe.fetch applies its own variant of the rule
// and does not call this function.
func extractPolicy(buf *Buffer, length int, stopByte []byte) []byte {
	if b, ok := ResolveStopByte(stopByte); ok {
		if idx := buf.Search(b); idx >= 0 {
			if length == 0 || idx < length {
				return buf.Shift(idx + 1)
			}
			return buf.Shift(length)
		}
	}
	if length == 0 {
		return buf.Drain()
	}
	return buf.Shift(length)
}
