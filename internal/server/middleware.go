package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// corsMiddleware adds CORS headers and records request metrics.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		// Cache preflight results for a day to reduce OPTIONS traffic
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		start := time.Now()
		next(rw, r)
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, http.StatusText(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
	}
}

// rateLimitMiddleware gates upload endpoints behind the per-client limiter.
func (s *Server) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next(w, r)
			return
		}

		var uploadBytes int64
		if r.ContentLength > 0 {
			uploadBytes = r.ContentLength
		}

		if err := s.limiter.Check(getClientIP(r), uploadBytes); err != nil {
			var rateErr *RateLimitError
			var quotaErr *UploadQuotaError
			switch {
			case errors.As(err, &rateErr):
				rateLimitHits.WithLabelValues("rate").Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())+1))
				s.writeError(w, http.StatusTooManyRequests, "rate_limited", "rate", "too many extraction requests")
			case errors.As(err, &quotaErr):
				rateLimitHits.WithLabelValues("daily_quota").Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(quotaErr.Resets).Seconds())+1))
				s.writeError(w, http.StatusTooManyRequests, "rate_limited", "daily_quota", "daily upload quota exceeded")
			default:
				s.writeError(w, http.StatusTooManyRequests, "rate_limited", "", err.Error())
			}
			return
		}

		next(w, r)
	}
}

// getClientIP identifies the client for rate limiting, honoring proxy
// headers before falling back to the connection address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}
