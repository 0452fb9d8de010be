//go:build !unix

package zarr

import "fmt"

// ProcessSynchronizer requires flock and is unavailable on this platform
type ProcessSynchronizer struct{}

var _ Synchronizer = (*ProcessSynchronizer)(nil)

func NewProcessSynchronizer(dir string) (*ProcessSynchronizer, error) {
	return nil, fmt.Errorf("%w: process synchronizer on this platform", ErrNotSupported)
}

func (s *ProcessSynchronizer) Lock(key string) (func() error, error) {
	return nil, fmt.Errorf("%w: process synchronizer on this platform", ErrNotSupported)
}
