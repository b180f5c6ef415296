package lease

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Provider issues fresh credentials for a role. Implemented by an
// adapter over the secret backend; this package assumes nothing about
// transport or payload shape.
type Provider interface {
	Issue(ctx context.Context, role string) (Issued, error)
}

// Resolver serves leases from the store while they are fresh and
// coordinates refreshes so that at most one provider call is in flight
// per role. Concurrent callers for a stale role all wait on the same
// round and share its lease or its error. Rounds for different roles
// never block each other.
type Resolver struct {
	store    *Store
	provider Provider
	clock    Clock
	group    singleflight.Group
}

func NewResolver(store *Store, provider Provider, clock Clock) *Resolver {
	if clock == nil {
		clock = SystemClock
	}
	return &Resolver{store: store, provider: provider, clock: clock}
}

// Resolve returns usable credentials for a role. The second return
// value reports whether the lease was served from cache. On provider
// failure every waiter of the round receives a *ProviderError; stale
// data is never served in its place.
//
// A refresh round is detached from the caller that happens to lead it:
// cancelling a waiter's context abandons only that waiter, the round
// runs to completion and its result still reaches the others.
func (r *Resolver) Resolve(ctx context.Context, role string) (*Lease, bool, error) {
	if l, ok := r.store.Get(role); ok && l.Fresh(r.clock.Now()) {
		return l, true, nil
	}

	ch := r.group.DoChan(role, func() (interface{}, error) {
		return r.refresh(ctx, role)
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		rr := res.Val.(*refreshResult)
		return rr.lease, rr.fromCache, nil
	}
}

type refreshResult struct {
	lease     *Lease
	fromCache bool
}

func (r *Resolver) refresh(ctx context.Context, role string) (*refreshResult, error) {
	// A round may have finished between the fast path and here.
	if l, ok := r.store.Get(role); ok && l.Fresh(r.clock.Now()) {
		return &refreshResult{lease: l, fromCache: true}, nil
	}

	issued, err := r.provider.Issue(context.WithoutCancel(ctx), role)
	if err != nil {
		return nil, &ProviderError{Role: role, Err: err}
	}

	l := New(role, issued.Data, r.clock.Now(), issued.LeaseDuration, issued.Renewable)
	if l.Duration > 0 {
		if err := r.store.Put(l); err != nil {
			return nil, &ProviderError{Role: role, Err: err}
		}
	}
	return &refreshResult{lease: l}, nil
}
