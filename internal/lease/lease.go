// Package lease provides per-job mutual exclusion so two scheduler
// instances never run the same job at the same time.
package lease

import (
	"context"
	"errors"
	"time"
)

var (
	ErrLeaseHeld     = errors.New("lease_held")
	ErrInvalidLease  = errors.New("invalid_lease")
	ErrNotConfigured = errors.New("lease_backend_not_configured")
)

// Locker hands out leases keyed by job name.
type Locker interface {
	// Acquire returns ErrLeaseHeld when another holder owns an unexpired lease.
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

type Lease interface {
	Name() string
	Token() string
	// Release gives the lease up. Releasing a lease taken over after expiry is a no-op.
	Release(ctx context.Context) error
}

func validate(name string, ttl time.Duration) error {
	if name == "" {
		return errors.Join(ErrInvalidLease, errors.New("lease name is empty"))
	}
	if ttl <= 0 {
		return errors.Join(ErrInvalidLease, errors.New("lease ttl must be positive"))
	}
	return nil
}

type heldLease struct {
	name    string
	token   string
	release func(ctx context.Context) error
}

func (l *heldLease) Name() string  { return l.name }
func (l *heldLease) Token() string { return l.token }

func (l *heldLease) Release(ctx context.Context) error {
	if l == nil || l.release == nil {
		return nil
	}
	return l.release(ctx)
}
