package pipeline

import "sync/atomic"

// ResultStore is the single process-wide slot holding the most recent
// BlogResult. Every write bumps a version; the slot is never cleared.
type ResultStore struct {
	slot atomic.Pointer[versioned]
}

type versioned struct {
	version uint64
	result  *BlogResult
}

// Load returns the held result, or false while the store is empty.
func (s *ResultStore) Load() (*BlogResult, bool) {
	v := s.slot.Load()
	if v == nil {
		return nil, false
	}
	return v.result, true
}

// Version is 0 while empty and increases by one on every write.
func (s *ResultStore) Version() uint64 {
	if v := s.slot.Load(); v != nil {
		return v.version
	}
	return 0
}

// Swap stores r unconditionally and returns the new version: the last
// completed write wins. A nil r is ignored.
func (s *ResultStore) Swap(r *BlogResult) uint64 {
	if r == nil {
		return s.Version()
	}
	for {
		old := s.slot.Load()
		next := &versioned{version: 1, result: r}
		if old != nil {
			next.version = old.version + 1
		}
		if s.slot.CompareAndSwap(old, next) {
			return next.version
		}
	}
}

// CompareAndSwap stores r only if the store is still at version. It reports
// whether the write happened.
func (s *ResultStore) CompareAndSwap(version uint64, r *BlogResult) bool {
	if r == nil {
		return false
	}
	old := s.slot.Load()
	current := uint64(0)
	if old != nil {
		current = old.version
	}
	if current != version {
		return false
	}
	return s.slot.CompareAndSwap(old, &versioned{version: current + 1, result: r})
}
