//go:build unix

package zarr

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ProcessSynchronizer serializes chunk writes among processes sharing a
// directory of lock files, one advisory flock per chunk key
type ProcessSynchronizer struct {
	dir string
}

var _ Synchronizer = (*ProcessSynchronizer)(nil)

func NewProcessSynchronizer(dir string) (*ProcessSynchronizer, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, dirPermissionBits); err != nil {
		return nil, err
	}
	return &ProcessSynchronizer{dir: dir}, nil
}

func (s *ProcessSynchronizer) Lock(key string) (func() error, error) {
	path := filepath.Join(s.dir, filepath.FromSlash(key)+".lock")
	if err := os.MkdirAll(filepath.Dir(path), dirPermissionBits); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePermissionBits)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("locking %s: %w", key, err)
	}
	return func() error {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}, nil
}
