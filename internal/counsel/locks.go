package counsel

import "sync"

// sessionLocks serializes turns per session. Two concurrent turns on the
// same session must not interleave their clarification-count read with the
// message append; turns on different sessions run in parallel.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// Lock acquires the per-session lock for key. The returned func releases it.
// Entries are refcounted and removed when the last holder releases, so the
// map does not grow with session count.
func (s *sessionLocks) Lock(key string) func() {
	s.mu.Lock()
	entry, ok := s.locks[key]
	if !ok {
		entry = &sessionLock{}
		s.locks[key] = entry
	}
	entry.refs++
	s.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		s.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
