// Package fixture provides throttling HTTP servers with deterministic
// behavior, used as targets for the engine's own tests and demos.
package fixture

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// Server is a rate-limited fixture endpoint. Every response carries
// X-RateLimit-* headers; throttled responses add Retry-After and 429.
type Server struct {
	limiter *rate.Limiter
	limit   int
	router  chi.Router
}

// NewServer creates a fixture throttled by a token bucket.
func NewServer(perSecond rate.Limit, burst int) *Server {
	s := &Server{
		limiter: rate.NewLimiter(perSecond, burst),
		limit:   burst,
	}
	r := chi.NewRouter()
	r.Handle("/*", http.HandlerFunc(s.handle))
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	allowed := s.limiter.Allow()

	remaining := int(s.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	reset := time.Now().Add(time.Second).Unix()

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

	if !allowed {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// SequenceServer serves a fixed quota of 200s and then throttles every
// later request until Reset is called. Windowless and fully deterministic.
type SequenceServer struct {
	mu      sync.Mutex
	allowed int
	seen    int
	window  time.Duration
	resetAt time.Time
	router  chi.Router
}

// NewSequenceServer allows the first n requests and throttles the rest.
// When window is positive, the quota replenishes that long after the first
// throttled response, which gives recovery tests something to wait out.
func NewSequenceServer(n int, window time.Duration) *SequenceServer {
	s := &SequenceServer{allowed: n, window: window}
	r := chi.NewRouter()
	r.Handle("/*", http.HandlerFunc(s.handle))
	s.router = r
	return s
}

func (s *SequenceServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Reset restores the full quota.
func (s *SequenceServer) Reset() {
	s.mu.Lock()
	s.seen = 0
	s.resetAt = time.Time{}
	s.mu.Unlock()
}

func (s *SequenceServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if !s.resetAt.IsZero() && time.Now().After(s.resetAt) {
		s.seen = 0
		s.resetAt = time.Time{}
	}
	s.seen++
	over := s.seen > s.allowed
	if over && s.window > 0 && s.resetAt.IsZero() {
		s.resetAt = time.Now().Add(s.window)
	}
	remaining := s.allowed - s.seen
	if remaining < 0 {
		remaining = 0
	}
	s.mu.Unlock()

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.allowed))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))

	if over {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}
