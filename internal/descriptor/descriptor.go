// Package descriptor wraps the raw non-blocking read/write/close
// syscalls used by the pipe stream family. It plays the role the
// teacher's net_fd.go plays for znet's connection type, but targets
// golang.org/x/sys/unix instead of the bare syscall package: the
// teacher's net_fd.go predates the module taking on x/sys as a
// dependency, so it hand-rolls syscall.Read/syscall.Write directly;
// the rest of the retrieval pack treats x/sys/unix as the idiomatic
// non-blocking I/O layer; we follow the pack instead of the teacher's
// historical accident here (see DESIGN.md).
package descriptor

import (
	"errors"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

// ErrWouldBlock is re-exported from code.hybscloud.com/iox, whose
// whole purpose is naming this non-blocking control-flow signal
// (io: would block) instead of every caller inventing its own. Callers
// must not confuse it with end-of-file: a true EOF is reported as
// (0, nil), matching connection.go's own eofError rule (n==0 && err==
// nil => eof) for the raw readv path it uses inside fill().
var ErrWouldBlock = iox.ErrWouldBlock

// Read performs one non-blocking read. It distinguishes "no data yet"
// (ErrWouldBlock, or an EINTR that should simply be retried) from a
// genuine end-of-file (0, nil) and from a real failure.
func Read(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, ErrWouldBlock
		}
		if isWouldBlock(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// Write performs one non-blocking write.
func Write(fd int, p []byte) (int, error) {
	n, err := unix.Write(fd, p)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, ErrWouldBlock
		}
		if isWouldBlock(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// IsWouldBlock reports whether err is the sentinel returned by Read/
// Write to mean "no progress without waiting".
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}

// SetNonblock configures fd for non-blocking I/O.
func SetNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

// Close closes fd. It is the caller's responsibility to ensure this is
// only invoked once per fd (stream types track this via their own
// "closed" flag, same as net_fd.go's atomic closed counter).
func Close(fd int) error {
	return unix.Close(fd)
}

// Socketpair returns two connected, non-blocking AF_UNIX SOCK_STREAM
// descriptors, grounded on listener.go's non-blocking-socket setup but
// adapted from TCP accept() to socketpair(2) per spec §6 ("pair()
// returns a pair of connected stream sockets").
func Socketpair() (a, b int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, 0, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return 0, 0, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}
