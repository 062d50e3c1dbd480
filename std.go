package iostream

import (
	"os"
	"sync"

	"github.com/zhihanii/iostream/internal/descriptor"
	"github.com/zhihanii/iostream/internal/epollreactor"
	"github.com/zhihanii/iostream/reactor"
)

var (
	defaultReactorOnce sync.Once
	defaultReactorInst *epollreactor.Reactor
	defaultReactorErr  error
)

// defaultReactor lazily builds the package-wide epoll reactor used by
// Pair, Stdin, Stdout, Stderr, and any pipe constructed without
// WithAttachedReactor (spec §6, "a process-wide default reactor").
func defaultReactor() (reactor.Reactor, error) {
	defaultReactorOnce.Do(func() {
		defaultReactorInst, defaultReactorErr = epollreactor.New()
	})
	if defaultReactorErr != nil {
		return nil, defaultReactorErr
	}
	return defaultReactorInst, nil
}

// Pair returns two connected DuplexPipes over a non-blocking AF_UNIX
// socketpair, both driven by the default reactor (spec §6, "pair()").
// Either side closing tears down only its own descriptor.
func Pair() (a, b *DuplexPipe, err error) {
	fda, fdb, err := descriptor.Socketpair()
	if err != nil {
		return nil, nil, err
	}
	r, err := defaultReactor()
	if err != nil {
		_ = descriptor.Close(fda)
		_ = descriptor.Close(fdb)
		return nil, nil, err
	}
	return NewDuplexPipe(fda, r, true), NewDuplexPipe(fdb, r, true), nil
}

var (
	stdinOnce   sync.Once
	stdinPipe   *ReadablePipe
	stdoutOnce  sync.Once
	stdoutPipe  *WritablePipe
	stderrOnce  sync.Once
	stderrPipe  *WritablePipe
)

// Stdin returns a ReadablePipe over file descriptor 0, first switching
// it to non-blocking mode. It never auto-closes fd 0.
func Stdin() (*ReadablePipe, error) {
	var err error
	stdinOnce.Do(func() {
		stdinPipe, err = wrapStd(int(os.Stdin.Fd()), false)
	})
	if stdinPipe == nil {
		return nil, err
	}
	return stdinPipe, nil
}

// Stdout returns a WritablePipe over file descriptor 1.
func Stdout() (*WritablePipe, error) {
	var err error
	stdoutOnce.Do(func() {
		fd := int(os.Stdout.Fd())
		if serr := descriptor.SetNonblock(fd, true); serr != nil {
			err = serr
			return
		}
		r, rerr := defaultReactor()
		if rerr != nil {
			err = rerr
			return
		}
		stdoutPipe = NewWritablePipe(fd, r, false)
	})
	if stdoutPipe == nil {
		return nil, err
	}
	return stdoutPipe, nil
}

// Stderr returns a WritablePipe over file descriptor 2.
func Stderr() (*WritablePipe, error) {
	var err error
	stderrOnce.Do(func() {
		fd := int(os.Stderr.Fd())
		if serr := descriptor.SetNonblock(fd, true); serr != nil {
			err = serr
			return
		}
		r, rerr := defaultReactor()
		if rerr != nil {
			err = rerr
			return
		}
		stderrPipe = NewWritablePipe(fd, r, false)
	})
	if stderrPipe == nil {
		return nil, err
	}
	return stderrPipe, nil
}

func wrapStd(fd int, autoClose bool) (*ReadablePipe, error) {
	if err := descriptor.SetNonblock(fd, true); err != nil {
		return nil, err
	}
	r, err := defaultReactor()
	if err != nil {
		return nil, err
	}
	return NewReadablePipe(fd, r, autoClose), nil
}
