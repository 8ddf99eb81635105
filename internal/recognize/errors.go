package recognize

import (
	"fmt"
	"time"
)

// TimeoutError indicates the recognition call exceeded its per-chunk timeout.
type TimeoutError struct {
	ChunkIndex int
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("recognition timed out after %s for chunk %d", e.Timeout, e.ChunkIndex)
}

// QuotaExceededError indicates the provider rejected the call for rate or
// quota reasons.
type QuotaExceededError struct {
	ChunkIndex int
	RetryAfter time.Duration
}

func (e *QuotaExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("recognition quota exceeded for chunk %d (retry after %s)", e.ChunkIndex, e.RetryAfter)
	}
	return fmt.Sprintf("recognition quota exceeded for chunk %d", e.ChunkIndex)
}

// UnavailableError covers transport failures and provider-side errors that
// are neither timeouts nor quota rejections.
type UnavailableError struct {
	ChunkIndex int
	Err        error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("recognition unavailable for chunk %d: %v", e.ChunkIndex, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
