//go:build unix

package pool

import (
	"os"

	"golang.org/x/sys/unix"
)

// Advisory flock(2) discipline: shared for snapshot reads, exclusive for the
// read-modify-write cycle. Locks release with the descriptor on every exit
// path.

func lockShared(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_SH)
}

func lockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

func unlock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
