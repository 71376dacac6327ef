package ratelimit

import "context"

// RateLimiter throttles provider sends. Keys are channel names.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}

// Noop never throttles.
type Noop struct{}

func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }
func (Noop) Wait(context.Context, string) error { return nil }
