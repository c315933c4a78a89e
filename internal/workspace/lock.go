package workspace

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// errLocked is returned when another process holds the workspace lock
var errLocked = errors.New("workspace is locked by another run")

// fileLock is an advisory flock on "{workspace}.lock". The kernel drops it
// when the holding process exits, so a crashed run never leaves a stale lock.
type fileLock struct {
	path string
	f    *os.File
}

func lockPath(workspace string) string {
	return workspace + ".lock"
}

func acquireLock(workspace string) (*fileLock, error) {
	path := lockPath(workspace)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errLocked
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	f.Truncate(0)
	f.WriteString(strconv.Itoa(os.Getpid()))
	return &fileLock{path: path, f: f}, nil
}

// release unlocks and, when remove is set, deletes the lock file
func (l *fileLock) release(remove bool) error {
	if l == nil || l.f == nil {
		return nil
	}
	if remove {
		os.Remove(l.path)
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
