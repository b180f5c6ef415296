package lease

import (
	"fmt"
	"time"
)

// Lease is a time-bounded grant of dynamically generated credentials.
// The payload is opaque to this package and is never inspected or
// mutated. Leases are immutable once constructed; a refresh produces a
// new Lease rather than updating one in place.
type Lease struct {
	Role      string
	Data      map[string]interface{}
	IssuedAt  time.Time
	Duration  int // lease duration in seconds, as reported by the provider
	ExpiresAt time.Time
	Renewable bool
}

// New builds a lease issued at the given instant. ExpiresAt is always
// derived from issuedAt and the duration. The payload map is copied so
// later mutation by the caller cannot reach a published lease.
func New(role string, data map[string]interface{}, issuedAt time.Time, durationSeconds int, renewable bool) *Lease {
	payload := make(map[string]interface{}, len(data))
	for k, v := range data {
		payload[k] = v
	}

	return &Lease{
		Role:      role,
		Data:      payload,
		IssuedAt:  issuedAt,
		Duration:  durationSeconds,
		ExpiresAt: issuedAt.Add(time.Duration(durationSeconds) * time.Second),
		Renewable: renewable,
	}
}

// Fresh reports whether the lease is still usable at the given instant.
// There is no grace period: a lease is fresh strictly until ExpiresAt,
// and a lease without a positive duration is never fresh at any
// instant.
func (l *Lease) Fresh(now time.Time) bool {
	if l.Duration <= 0 {
		return false
	}
	return now.Before(l.ExpiresAt)
}

// TTL returns the time remaining until expiry, negative once expired.
func (l *Lease) TTL(now time.Time) time.Duration {
	return l.ExpiresAt.Sub(now)
}

// ProviderError is the single failure type surfaced by Resolve: the
// backend refused or failed to issue credentials for a role. It is never
// retried here; retry policy belongs to the caller.
type ProviderError struct {
	Role string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("issuing credentials for role %q: %s", e.Role, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Issued is the raw result of a provider call, before it is stamped
// into a Lease.
type Issued struct {
	Data          map[string]interface{}
	LeaseDuration int
	Renewable     bool
}

// Clock is the time source used for freshness decisions. Injected so
// tests can cross expiry boundaries without waiting.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}
