package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

var (
	// ErrNotObtained means the lock is held elsewhere.
	ErrNotObtained = errors.New("lock not obtained")
	// ErrLost means the lease expired or was taken over before it could be
	// extended.
	ErrLost = errors.New("lock lost")
)

// Locker hands out named, leased locks shared by every process connected to
// the same Redis.
type Locker struct {
	rs *redsync.Redsync
}

func NewLocker(client goredislib.UniversalClient) *Locker {
	return &Locker{rs: redsync.New(goredis.NewPool(client))}
}

// Lock is a held lease.
type Lock struct {
	rs    *redsync.Redsync
	mutex *redsync.Mutex
	name  string
}

// Lock makes a single attempt to take name for lease. It never waits for a
// holder to let go.
func (l *Locker) Lock(ctx context.Context, name string, lease time.Duration) (*Lock, error) {
	m := l.rs.NewMutex(name, redsync.WithExpiry(lease), redsync.WithTries(1))
	if err := m.LockContext(ctx); err != nil {
		if errors.Is(err, redsync.ErrFailed) || isTaken(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotObtained, name)
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	return &Lock{rs: l.rs, mutex: m, name: name}, nil
}

// Extend refreshes the lease of a lock this process still holds, starting a
// new window of length lease.
func (k *Lock) Extend(ctx context.Context, lease time.Duration) (*Lock, error) {
	m := k.rs.NewMutex(k.name,
		redsync.WithExpiry(lease),
		redsync.WithTries(1),
		redsync.WithValue(k.mutex.Value()),
	)
	ok, err := m.ExtendContext(ctx)
	if err != nil || !ok {
		if err == nil || errors.Is(err, redsync.ErrExtendFailed) || isTaken(err) {
			return nil, fmt.Errorf("%w: %s", ErrLost, k.name)
		}
		return nil, fmt.Errorf("failed to extend lock %s: %w", k.name, err)
	}
	k.mutex = m
	return k, nil
}

// Unlock releases the lease. Callers may ignore the error; an unreleased lock
// frees itself when the lease runs out.
func (k *Lock) Unlock(ctx context.Context) error {
	ok, err := k.mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", k.name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLost, k.name)
	}
	return nil
}

func (k *Lock) Name() string {
	return k.name
}

func isTaken(err error) bool {
	var taken *redsync.ErrTaken
	return errors.As(err, &taken)
}
