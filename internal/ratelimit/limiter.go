package ratelimit

import "context"

// RateLimiter throttles calls to a named downstream collaborator (crm, email).
type RateLimiter interface {
	Allow(ctx context.Context, target string) (bool, error)
	Wait(ctx context.Context, target string) error
}
