// Package dedup keeps a bounded, time-expiring set of recently seen image fingerprints.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store is the duplicate-submission cache. Every method is safe for concurrent use and
// treats entries older than the configured TTL as absent.
type Store interface {
	// Contains reports whether key was inserted and has not expired.
	Contains(ctx context.Context, key string) (bool, error)

	// Insert records key at the current time, evicting the oldest live entry first
	// when the store is full. Re-inserting a live key refreshes its timestamp.
	Insert(ctx context.Context, key string) error

	// InsertIfAbsent atomically inserts key unless a live entry exists. It reports
	// whether the key was inserted.
	InsertIfAbsent(ctx context.Context, key string) (bool, error)

	// Remove drops key if present.
	Remove(ctx context.Context, key string) error

	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)
}

type Options struct {
	TTL      time.Duration
	Capacity int
	Now      func() time.Time
}

var DefaultOptions = Options{
	TTL:      time.Hour,
	Capacity: 10000,
}

var ErrInvalidOptions = errors.New("invalid dedup options")

func (o Options) normalize() (Options, error) {
	if o.TTL <= 0 {
		return o, fmt.Errorf("%w: ttl must be positive", ErrInvalidOptions)
	}
	if o.Capacity < 1 {
		return o, fmt.Errorf("%w: capacity must be at least 1", ErrInvalidOptions)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o, nil
}
