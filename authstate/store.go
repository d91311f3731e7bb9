package authstate

import (
	"context"
	"sync"

	"github.com/uimp/portalguard"
)

// Snapshot is one immutable auth state.
type Snapshot struct {
	User            *portalguard.Identity
	IsLoading       bool
	IsAuthenticated bool
	// Version increases by one on every replacement.
	Version uint64
}

// Loading is the state before the first resolution completes.
func Loading() Snapshot {
	return Snapshot{IsLoading: true}
}

// Anonymous is the settled signed-out state.
func Anonymous() Snapshot {
	return Snapshot{}
}

// Authenticated is the settled signed-in state for id.
func Authenticated(id portalguard.Identity) Snapshot {
	return Snapshot{User: &id, IsAuthenticated: true}
}

// Store is a concurrency-safe holder of the current Snapshot.
type Store struct {
	mu      sync.RWMutex
	current Snapshot
	changed chan struct{}

	// writeMu serializes Refresh calls.
	writeMu sync.Mutex
}

// NewStore returns a Store in the loading state.
func NewStore() *Store {
	return &Store{current: Loading(), changed: make(chan struct{})}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Watch returns the current state and a channel closed when it is replaced.
func (s *Store) Watch() (Snapshot, <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.changed
}

// Replace publishes next as the current state and returns it with its
// assigned Version. IsAuthenticated is derived from User.
func (s *Store) Replace(next Snapshot) Snapshot {
	if next.User != nil {
		u := *next.User
		next.User = &u
	}
	next.IsAuthenticated = next.User != nil && !next.IsLoading

	s.mu.Lock()
	next.Version = s.current.Version + 1
	s.current = next
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
	return next
}

// Refresh publishes a loading state, asks res who the caller is, and
// publishes the answer. On error the store settles as anonymous and the
// error is returned. If ctx ends first the answer is discarded, the previous
// state is restored and ctx's error is returned. Concurrent Refresh calls run
// one after another.
func (s *Store) Refresh(ctx context.Context, res Resolver) (Snapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.Snapshot()
	s.Replace(Snapshot{User: prev.User, IsLoading: true})

	id, err := res.WhoAmI(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		restored := s.Replace(Snapshot{User: prev.User, IsLoading: prev.IsLoading})
		if err == nil {
			err = ctxErr
		}
		return restored, err
	}
	if err != nil {
		return s.Replace(Anonymous()), err
	}
	if id == nil {
		return s.Replace(Anonymous()), nil
	}
	return s.Replace(Authenticated(*id)), nil
}

// SignOut publishes the anonymous state immediately.
func (s *Store) SignOut() Snapshot {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.Replace(Anonymous())
}
