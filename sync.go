package zarr

import "sync"

// Synchronizer hands out exclusive locks keyed by chunk key. Arrays with a
// synchronizer hold the chunk's lock for each read-modify-write of that chunk.
type Synchronizer interface {
	Lock(key string) (unlock func() error, err error)
}

// ThreadSynchronizer serializes chunk writes among goroutines of one process
type ThreadSynchronizer struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is dropped from the map once no holder or waiter refers to it
type keyLock struct {
	sync.Mutex
	refs int
}

var _ Synchronizer = (*ThreadSynchronizer)(nil)

func NewThreadSynchronizer() *ThreadSynchronizer {
	return &ThreadSynchronizer{locks: map[string]*keyLock{}}
}

func (s *ThreadSynchronizer) Lock(key string) (func() error, error) {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() error {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
		return nil
	}, nil
}
