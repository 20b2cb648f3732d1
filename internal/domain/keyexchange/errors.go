package keyexchange

import (
	"errors"
	"fmt"

	"collab/backend/internal/ratelimit"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrMisconfigured = errors.New("server configuration error")
	ErrRateLimited   = errors.New("too many requests")
)

// RateLimitedError carries the limiter decision so callers can emit a retry hint.
type RateLimitedError struct {
	Decision ratelimit.Decision
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %ds", ErrRateLimited, e.Decision.RetryAfterSeconds())
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

func IsErrUnauthorized(err error) bool  { return errors.Is(err, ErrUnauthorized) }
func IsErrMisconfigured(err error) bool { return errors.Is(err, ErrMisconfigured) }
func IsErrRateLimited(err error) bool   { return errors.Is(err, ErrRateLimited) }
