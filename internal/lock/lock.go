package redlock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockHeld        = errors.New("lock is held by another owner")
	ErrLockNotOwned    = errors.New("lock expired or is owned by another holder")
	ErrLockNotAcquired = errors.New("lock not acquired within the wait timeout")
)

const (
	releaseScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	extendScript  = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

// Locker is a single-key Redis lock. value identifies the owner so that only
// the holder can release or extend it.
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{client: client, key: key, value: value}
}

// NewRunLocker locks one (institution, cut-off date) pair under a fresh owner id.
func NewRunLocker(client redis.UniversalClient, institutionCode int, cutOffDate string) *Locker {
	return NewLocker(client, RunKey(institutionCode, cutOffDate), uuid.NewString())
}

// RunKey is the lock key for a reconciliation run.
func RunKey(institutionCode int, cutOffDate string) string {
	return fmt.Sprintf("conciliation:%d:%s", institutionCode, cutOffDate)
}

func (l *Locker) Key() string {
	return l.key
}

// Lock tries once to take the lock for ttl.
func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key, l.value, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", l.key, ErrLockHeld)
	}
	return nil
}

// Unlock releases the lock if this Locker still owns it.
func (l *Locker) Unlock(ctx context.Context) error {
	res, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if res == int64(0) {
		return fmt.Errorf("%s: %w", l.key, ErrLockNotOwned)
	}
	return nil
}

// ExtendLock resets the expiry of an owned lock.
func (l *Locker) ExtendLock(ctx context.Context, ttl time.Duration) error {
	res, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, strconv.FormatInt(ttl.Milliseconds(), 10)).Result()
	if err != nil {
		return err
	}
	if res == int64(0) {
		return fmt.Errorf("%s: %w", l.key, ErrLockNotOwned)
	}
	return nil
}

// WaitLock retries Lock with exponential backoff until waitTimeout elapses or ctx is done.
func (l *Locker) WaitLock(ctx context.Context, ttl, waitTimeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = waitTimeout

	err := backoff.Retry(func() error {
		err := l.Lock(ctx, ttl)
		if err == nil || errors.Is(err, ErrLockHeld) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))

	if errors.Is(err, ErrLockHeld) {
		return fmt.Errorf("%s: %w", l.key, ErrLockNotAcquired)
	}
	return err
}
