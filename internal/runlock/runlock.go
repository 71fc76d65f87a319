// Package runlock ensures a single collection run is in flight at a time.
package runlock

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrLeaseLost reports that a lease stopped holding its lock before Release.
var ErrLeaseLost = errors.New("run lock lease lost")

// Lease is a held run lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
	// Lost is closed if the lock slips away from this lease while held.
	Lost() <-chan struct{}
}

// Locker hands out at most one lease at a time. TryAcquire never waits: a
// held lock yields news.ErrRunInProgress.
type Locker interface {
	TryAcquire(ctx context.Context) (Lease, error)
}

// Local is an in-process lock.
type Local struct {
	held atomic.Bool
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) TryAcquire(ctx context.Context) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.held.CompareAndSwap(false, true) {
		return nil, errRunInProgress()
	}
	return &localLease{lock: l}, nil
}

type localLease struct {
	lock     *Local
	released atomic.Bool
}

// Lost returns nil: an in-process lease cannot be taken over.
func (l *localLease) Lost() <-chan struct{} { return nil }

func (l *localLease) Release(context.Context) error {
	if l.released.CompareAndSwap(false, true) {
		l.lock.held.Store(false)
	}
	return nil
}
