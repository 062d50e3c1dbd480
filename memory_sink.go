package iostream

import (
	"sync"
	"time"

	"github.com/zhihanii/iostream/errs"
)

// MemorySink is the seekable duplex buffer (spec §4.5): unlike
// MemoryStream's FIFO queue model, it is addressed by a Cursor and
// retains every byte ever written, so a read can be replayed by
// seeking backward.
type MemorySink struct {
	mu sync.Mutex

	buf    *Buffer
	cursor *Cursor

	open, writable bool
}

// NewMemorySink returns an empty, open, readable, writable sink.
func NewMemorySink() *MemorySink {
	buf := NewBuffer()
	return &MemorySink{
		buf:      buf,
		cursor:   buf.NewCursor(),
		open:     true,
		writable: true,
	}
}

// IsReadable is open && cursor.valid (spec §4.5): a cursor sitting at
// or past the end of the buffer is not readable.
func (s *MemorySink) IsReadable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open && s.cursor.Valid()
}

func (s *MemorySink) IsWritable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open && s.writable
}

func (s *MemorySink) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Read advances the cursor and returns the bytes it passed over. It
// never suspends: every byte the sink could ever produce is already
// resident, so timeout is accepted for interface conformance but
// unused.
func (s *MemorySink) Read(length int, stopByte []byte, _ time.Duration) ([]byte, error) {
	if length < 0 {
		return nil, errs.New(errs.KindInvalidArgument, "negative length", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open || !s.cursor.Valid() {
		return nil, errs.New(errs.KindUnreadable, "sink is not readable", nil)
	}

	cur := s.cursor.Key()
	remaining := s.cursor.Len() - cur
	n := length

	if b, ok := ResolveStopByte(stopByte); ok {
		if idx := s.buf.SearchFrom(b, cur); idx >= 0 {
			rel := idx - cur
			if length == 0 || rel < length {
				n = rel + 1
			} else {
				n = length
			}
		} else if length == 0 {
			n = remaining
		}
	} else if length == 0 {
		n = remaining
	}
	if n > remaining {
		n = remaining
	}

	out := s.cursor.Bytes(cur, cur+n)
	for i := 0; i < n; i++ {
		s.cursor.Next()
	}
	return out, nil
}

// Write splices data at the cursor (or appends, when the cursor sits
// at the end) and advances the cursor by len(data).
func (s *MemorySink) Write(data []byte, timeout time.Duration) (int, error) {
	return s.write(data, timeout, false)
}

// End writes data then marks the sink unwritable; reads remain valid.
func (s *MemorySink) End(data []byte, timeout time.Duration) (int, error) {
	return s.write(data, timeout, true)
}

func (s *MemorySink) write(data []byte, _ time.Duration, end bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open || !s.writable {
		return 0, errs.New(errs.KindUnwritable, "sink is not writable", nil)
	}

	cur := s.cursor.Key()
	s.cursor.Insert(data)
	s.cursor.Seek(cur + len(data))

	if end {
		s.writable = false
	}
	return len(data), nil
}

// Seek computes an absolute offset in [0, length] per whence (spec
// §4.5, Open Question resolved inclusive in SPEC_FULL.md §6.2).
func (s *MemorySink) Seek(offset int64, whence Whence, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return 0, errs.New(errs.KindUnseekable, "sink is closed", nil)
	}

	length := int64(s.cursor.Len())
	var abs int64
	switch whence {
	case SeekStart:
		abs = offset
	case SeekCurrent:
		abs = int64(s.cursor.Key()) + offset
	case SeekEnd:
		abs = length + offset
	default:
		return 0, errs.New(errs.KindInvalidArgument, "invalid whence", nil)
	}
	if abs < 0 || abs > length {
		return 0, errs.New(errs.KindOutOfBounds, "seek outside buffer", nil)
	}
	s.cursor.Seek(int(abs))
	return abs, nil
}

func (s *MemorySink) Tell() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(s.cursor.Key()), nil
}

func (s *MemorySink) Length() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(s.cursor.Len()), nil
}

// Close is idempotent and terminal.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.writable = false
	return nil
}
