package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// auth checks the API key header against the configured keys and applies a
// per-key token bucket.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(s.cfg.Auth.HeaderAPIKey)
		if key == "" || !s.keyValid(key) {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		if !s.limiterFor(key).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) keyValid(key string) bool {
	for _, configured := range s.cfg.Auth.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(configured)) == 1 {
			return true
		}
	}
	return false
}

func (s *Server) limiterFor(key string) *rate.Limiter {
	if v, ok := s.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	lim := rate.NewLimiter(rate.Limit(s.cfg.RateLimit.RPS), s.cfg.RateLimit.Burst)
	actual, _ := s.limiters.LoadOrStore(key, lim)
	return actual.(*rate.Limiter)
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
