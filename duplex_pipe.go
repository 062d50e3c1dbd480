package iostream

import (
	"time"

	"github.com/zhihanii/iostream/reactor"
	"go.uber.org/multierr"
)

// DuplexPipe composes a ReadablePipe and a WritablePipe over one
// descriptor (spec §4.8), grounded on connection.go owning both an
// inputBuffer and outputBuffer over a single fd.
type DuplexPipe struct {
	r *ReadablePipe
	w *WritablePipe
}

// NewDuplexPipe wraps fd (already non-blocking) with both halves
// driven by react. autoClose controls whether closing the pipe also closes
// fd; only one half should own the close, so it is applied to the
// writable half and the readable half never auto-closes fd itself.
func NewDuplexPipe(fd int, react reactor.Reactor, autoClose bool) *DuplexPipe {
	return newDuplexPipe(fd, react, autoClose, chunkSize)
}

func newDuplexPipe(fd int, react reactor.Reactor, autoClose bool, chunk int) *DuplexPipe {
	return &DuplexPipe{
		r: newReadablePipe(fd, react, false, chunk),
		w: newWritablePipe(fd, react, autoClose, chunk),
	}
}

func (d *DuplexPipe) Resource() int { return d.r.Resource() }

func (d *DuplexPipe) Rebind(r reactor.Reactor) error {
	if err := d.r.Rebind(r); err != nil {
		return err
	}
	return d.w.Rebind(r)
}

func (d *DuplexPipe) Read(length int, stopByte []byte, timeout time.Duration) ([]byte, error) {
	return d.r.Read(length, stopByte, timeout)
}

func (d *DuplexPipe) IsReadable() bool { return d.r.IsReadable() }

func (d *DuplexPipe) Write(data []byte, timeout time.Duration) (int, error) {
	return d.w.Write(data, timeout)
}

func (d *DuplexPipe) IsWritable() bool { return d.w.IsWritable() }

// End writes data through the writable half, then closes the readable
// half regardless of write outcome (spec §4.8).
func (d *DuplexPipe) End(data []byte, timeout time.Duration) (int, error) {
	n, err := d.w.End(data, timeout)
	_ = d.r.Close()
	return n, err
}

// IsOpen is the disjunction of both halves (spec §4.8).
func (d *DuplexPipe) IsOpen() bool {
	return d.r.IsOpen() || d.w.IsOpen()
}

// Close closes both halves, combining any failures.
func (d *DuplexPipe) Close() error {
	return multierr.Combine(d.r.Close(), d.w.Close())
}
