package server

import (
	"fmt"
	"sync"
	"time"
)

// UploadLimiter throttles extraction uploads per client. Both downstream
// services the pipeline depends on are quota-limited, so one client must
// not be able to burn the shared budget.
type UploadLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	dailyUploadBytes  int64

	clients map[string]*clientUsage
}

// clientUsage tracks one client's request window and daily upload volume.
type clientUsage struct {
	windowStart time.Time
	windowCount int

	dayStart time.Time
	dayBytes int64
}

// NewUploadLimiter creates a limiter. A zero limit disables that check.
func NewUploadLimiter(requestsPerMinute int, dailyUploadBytes int64) *UploadLimiter {
	return &UploadLimiter{
		requestsPerMinute: requestsPerMinute,
		dailyUploadBytes:  dailyUploadBytes,
		clients:           make(map[string]*clientUsage),
	}
}

// Check admits or rejects an upload of uploadBytes from the given client.
// On admission the client's counters are charged.
func (l *UploadLimiter) Check(clientID string, uploadBytes int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	usage, ok := l.clients[clientID]
	if !ok {
		usage = &clientUsage{windowStart: now, dayStart: now}
		l.clients[clientID] = usage
	}

	if now.Sub(usage.windowStart) >= time.Minute {
		usage.windowStart = now
		usage.windowCount = 0
	}
	if now.Year() != usage.dayStart.Year() || now.YearDay() != usage.dayStart.YearDay() {
		usage.dayStart = now
		usage.dayBytes = 0
	}

	if l.requestsPerMinute > 0 && usage.windowCount >= l.requestsPerMinute {
		return &RateLimitError{
			Limit:      l.requestsPerMinute,
			RetryAfter: time.Minute - now.Sub(usage.windowStart),
		}
	}
	if l.dailyUploadBytes > 0 && usage.dayBytes+uploadBytes > l.dailyUploadBytes {
		return &UploadQuotaError{
			Limit:  l.dailyUploadBytes,
			Used:   usage.dayBytes,
			Resets: time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location()),
		}
	}

	usage.windowCount++
	usage.dayBytes += uploadBytes
	return nil
}

// Usage reports a client's current window request count and daily bytes.
func (l *UploadLimiter) Usage(clientID string) (requests int, uploadBytes int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if usage, ok := l.clients[clientID]; ok {
		return usage.windowCount, usage.dayBytes
	}
	return 0, 0
}

// RateLimitError reports a per-minute request limit violation.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d requests per minute exceeded, retry after %v", e.Limit, e.RetryAfter)
}

// UploadQuotaError reports a daily upload volume violation.
type UploadQuotaError struct {
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *UploadQuotaError) Error() string {
	return fmt.Sprintf("daily upload quota exceeded (used %d of %d bytes, resets %s)",
		e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
