package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/jobclock/internal/api/response"
	"github.com/kiranshivaraju/jobclock/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	defaultRateWindow        = time.Minute
)

// RateLimit caps requests per technician in fixed windows counted in Redis.
// All keys issued to one technician share a single budget, so a timer
// client cannot dodge the limit by rotating keys.
type RateLimit struct {
	cache  cache.Cache
	limit  int
	window time.Duration
	now    func() time.Time
}

// RateLimitOption configures a RateLimit.
type RateLimitOption func(*RateLimit)

// WithRateWindow sets the window length. Windows are aligned to multiples
// of d, so every server agrees on when a window resets.
func WithRateWindow(d time.Duration) RateLimitOption {
	return func(rl *RateLimit) {
		if d > 0 {
			rl.window = d
		}
	}
}

// WithRateClock overrides the wall clock.
func WithRateClock(now func() time.Time) RateLimitOption {
	return func(rl *RateLimit) { rl.now = now }
}

// NewRateLimit allows limit requests per window for each technician. A
// non-positive limit falls back to 60.
func NewRateLimit(c cache.Cache, limit int, opts ...RateLimitOption) *RateLimit {
	if limit <= 0 {
		limit = defaultRequestsPerMinute
	}
	rl := &RateLimit{cache: c, limit: limit, window: defaultRateWindow, now: time.Now}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Limit counts the request against the technician set by Authenticate.
// Requests without a technician pass through, as do requests made while
// Redis is unavailable.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		techID, ok := GetTechnicianID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		windowStart := now.Truncate(rl.window)
		reset := windowStart.Add(rl.window)

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(techID, windowStart), rl.window)
		if err != nil {
			slog.Warn("rate limit check failed", "technician_id", techID, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.limit-int(count), 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rl.limit) {
			slog.Warn("rate limit exceeded", "technician_id", techID, "count", count, "limit", rl.limit)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter(now, reset)))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", map[string]any{
					"limit":    rl.limit,
					"reset_at": reset.UTC().Format(time.RFC3339),
				})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfter rounds the wait until reset up to whole seconds, minimum one.
func retryAfter(now, reset time.Time) int {
	d := reset.Sub(now)
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return max(secs, 1)
}
