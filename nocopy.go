package iostream

import (
	"time"

	"github.com/zhihanii/iostream/reactor"
)

// chunkSize is the default read/write batch: 8192 bytes (spec §6,
// "Chunk size"). It replaces the teacher's block1k/block8k/pageSize
// ladder (this file originally held only those constants plus a
// zero-copy Reader/Writer pair), which existed to auto-size a
// network-buffer "bookSize" for repeated small reads; the spec pins a
// single constant instead, so the ladder collapses to one value.
const chunkSize = 8192

// Readable is the capability set for stream types that can be read
// from (spec §4.2). length == 0 means "any positive amount"; a
// non-empty stopByte (see ResolveStopByte) ends the read as soon as
// that byte is observed, with the byte included in the result.
type Readable interface {
	Read(length int, stopByte []byte, timeout time.Duration) ([]byte, error)
	IsReadable() bool
}

// Writable is the capability set for stream types that can be written
// to.
type Writable interface {
	Write(data []byte, timeout time.Duration) (int, error)
	End(data []byte, timeout time.Duration) (int, error)
	IsWritable() bool
}

// Duplex composes Readable and Writable over one underlying object,
// plus lifecycle controls common to every stream family.
type Duplex interface {
	Readable
	Writable
	IsOpen() bool
	Close() error
}

// Whence selects the reference point for Seekable.Seek.
type Whence int

const (
	SeekStart Whence = iota
	SeekCurrent
	SeekEnd
)

// Seekable is implemented only by MemorySink; pipe streams and
// MemoryStream are not seekable (spec Non-goals: no file/seekable
// kernel streams via the pipe path).
type Seekable interface {
	Seek(offset int64, whence Whence, timeout time.Duration) (int64, error)
	Tell() (int64, error)
	Length() (int64, error)
}

// DescriptorBacked is implemented by the pipe stream family: it exposes
// the underlying OS handle and supports rebinding watchers after the
// reactor has been swapped (spec §4.2, §9).
type DescriptorBacked interface {
	Resource() int
	Rebind(r reactor.Reactor) error
}

// ResolveStopByte implements the stop-byte contract from spec §4.2: a
// multi-byte value has only its first byte used, and an empty (nil or
// zero-length) value means "no stop byte". It returns (byte, true) when
// a stop byte applies.
func ResolveStopByte(stopByte []byte) (byte, bool) {
	if len(stopByte) == 0 {
		return 0, false
	}
	return stopByte[0], true
}
