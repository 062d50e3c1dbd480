package iostream

import (
	"github.com/zhihanii/iostream/reactor"
)

// Option configures a stream at construction time (spec §6,
// "Construction-time options"), following the teacher's functional-
// options convention: a private options struct plus exported With*
// constructors, instead of a wide constructor signature or a config
// struct literal.
type Option func(*options)

type options struct {
	hwm       int
	chunkSize int
	autoClose bool
	react     reactor.Reactor
}

func newOptions(opts ...Option) *options {
	o := &options{chunkSize: chunkSize}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithHighWaterMark sets the backpressure threshold for a MemoryStream
// (spec §4.4). 0 (the default) disables backpressure.
func WithHighWaterMark(n int) Option {
	return func(o *options) { o.hwm = n }
}

// WithChunkSize overrides the default per-read/write batch size (spec
// §6, "Chunk size") for a descriptor-backed stream.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithAutoClose controls whether closing a pipe also closes its
// underlying descriptor (spec §4.6-§4.8).
func WithAutoClose(v bool) Option {
	return func(o *options) { o.autoClose = v }
}

// WithAttachedReactor selects the reactor a descriptor-backed stream
// registers its watchers with, overriding the package default.
func WithAttachedReactor(r reactor.Reactor) Option {
	return func(o *options) { o.react = r }
}

// NewReadablePipeWithOptions wraps fd in a readable pipe configured by
// opts, falling back to the default reactor when WithAttachedReactor is
// not given.
func NewReadablePipeWithOptions(fd int, opts ...Option) (*ReadablePipe, error) {
	o := newOptions(opts...)
	r, err := resolveReactor(o)
	if err != nil {
		return nil, err
	}
	return newReadablePipe(fd, r, o.autoClose, o.chunkSize), nil
}

// NewWritablePipeWithOptions wraps fd in a writable pipe configured by
// opts.
func NewWritablePipeWithOptions(fd int, opts ...Option) (*WritablePipe, error) {
	o := newOptions(opts...)
	r, err := resolveReactor(o)
	if err != nil {
		return nil, err
	}
	return newWritablePipe(fd, r, o.autoClose, o.chunkSize), nil
}

// NewDuplexPipeWithOptions wraps fd in a duplex pipe configured by opts.
func NewDuplexPipeWithOptions(fd int, opts ...Option) (*DuplexPipe, error) {
	o := newOptions(opts...)
	r, err := resolveReactor(o)
	if err != nil {
		return nil, err
	}
	return newDuplexPipe(fd, r, o.autoClose, o.chunkSize), nil
}

// NewMemoryStreamWithOptions returns a MemoryStream honoring
// WithHighWaterMark.
func NewMemoryStreamWithOptions(opts ...Option) *MemoryStream {
	o := newOptions(opts...)
	return NewMemoryStream(o.hwm)
}

func resolveReactor(o *options) (reactor.Reactor, error) {
	if o.react != nil {
		return o.react, nil
	}
	return defaultReactor()
}
