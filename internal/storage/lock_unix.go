//go:build linux || darwin || freebsd || openbsd || netbsd

package storage

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// fileLock wraps flock(2) via golang.org/x/sys/unix, giving writers an
// exclusive lock and readers a shared lock on the backing file, per spec
// §5's single-writer exclusion model.
type fileLock struct {
	f *os.File
}

func newFileLock(f *os.File) *fileLock { return &fileLock{f: f} }

func (l *fileLock) lockShared() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_SH); err != nil {
		return errors.Wrap(err, "storage: acquire shared file lock")
	}
	return nil
}

func (l *fileLock) lockExclusive() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX); err != nil {
		return errors.Wrap(err, "storage: acquire exclusive file lock")
	}
	return nil
}

func (l *fileLock) unlock() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		return errors.Wrap(err, "storage: release file lock")
	}
	return nil
}
