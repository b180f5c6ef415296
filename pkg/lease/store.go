package lease

import (
	"fmt"
	"sync"
)

// Store holds the current lease per role. It is the single source of
// truth for freshness decisions and never contacts a provider. Safe for
// concurrent use; leases are immutable so values read under the lock
// stay valid after it is released.
type Store struct {
	mu     sync.RWMutex
	leases map[string]*Lease
}

func NewStore() *Store {
	return &Store{leases: make(map[string]*Lease)}
}

// Get returns the current lease for a role, if any. Expiry is the
// caller's concern; Get does not consult a clock.
func (s *Store) Get(role string) (*Lease, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leases[role]
	return l, ok
}

// Put atomically replaces the current lease for the lease's role,
// last writer wins. A lease whose duration is not positive would be
// expired on arrival and is rejected; such leases must not be cached.
func (s *Store) Put(l *Lease) error {
	if l.Duration <= 0 {
		return fmt.Errorf("lease for role %q has non-positive duration %d", l.Role, l.Duration)
	}

	s.mu.Lock()
	s.leases[l.Role] = l
	s.mu.Unlock()
	return nil
}
