package status

import (
	"fmt"
	"time"

	"github.com/oneconcern/paramon/pkg/errors"
)

// RateLimitedError reports an active initiation block together with the
// remaining cooldown, so callers can tell users exactly how long to wait.
type RateLimitedError struct {
	Remaining time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("initiation blocked, try again in %d seconds", e.RetryAfterSeconds())
}

// Is makes the typed error match the ErrRateLimited sentinel
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds is the remaining cooldown, rounded up
func (e *RateLimitedError) RetryAfterSeconds() int {
	return int((e.Remaining + time.Second - 1) / time.Second)
}

// RateLimited builds a rate limit error carrying the remaining cooldown
func RateLimited(remaining time.Duration) error {
	return &RateLimitedError{Remaining: remaining}
}

// RetryAfter extracts the remaining cooldown from an error chain
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.Remaining, true
	}
	return 0, false
}
