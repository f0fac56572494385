package repository

import (
	"time"

	"github.com/google/uuid"
)

// Option applies a configuration option to a store.
type Option func(*storeOptions)

type storeOptions struct {
	newID       func() string
	busyTimeout time.Duration
}

func defaultOptions() storeOptions {
	return storeOptions{
		newID:       uuid.NewString,
		busyTimeout: 5 * time.Second,
	}
}

// WithIDGenerator overrides how comparison ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(o *storeOptions) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithBusyTimeout sets how long sqlite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *storeOptions) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}
