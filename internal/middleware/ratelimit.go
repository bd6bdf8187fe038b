package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/chorechamp/internal/auth"
)

// RealIP extracts the client's real IP address, preferring Cloudflare's
// CF-Connecting-IP header, then X-Forwarded-For, and falling back to RemoteAddr.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain is the original client
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Limit is a request budget per key and window, written as "10/1m".
type Limit struct {
	Requests int
	Window   time.Duration
}

// ParseLimit reads the "<requests>/<duration>" form used in configuration.
func ParseLimit(s string) (Limit, error) {
	n, w, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Limit{}, fmt.Errorf("rate limit %q: want <requests>/<window>", s)
	}
	requests, err := strconv.Atoi(n)
	if err != nil || requests <= 0 {
		return Limit{}, fmt.Errorf("rate limit %q: requests must be a positive integer", s)
	}
	window, err := time.ParseDuration(w)
	if err != nil || window <= 0 {
		return Limit{}, fmt.Errorf("rate limit %q: window must be a positive duration", s)
	}
	return Limit{Requests: requests, Window: window}, nil
}

func (l *Limit) UnmarshalText(text []byte) error {
	parsed, err := ParseLimit(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l Limit) String() string {
	return strconv.Itoa(l.Requests) + "/" + l.Window.String()
}

// Or returns l, or def when l is unset.
func (l Limit) Or(def Limit) Limit {
	if l.Requests <= 0 || l.Window <= 0 {
		return def
	}
	return l
}

type entry struct {
	count    int
	windowAt time.Time
}

// RateLimiter provides in-memory fixed-window rate limiting shared by every
// limited route; keys carry the route scope.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Allow reports whether key is still within l. When it is not, retryAfter is
// the time left until the window resets.
func (rl *RateLimiter) Allow(key string, l Limit) (ok bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, found := rl.entries[key]
	if !found || now.After(e.windowAt) {
		rl.entries[key] = &entry{count: 1, windowAt: now.Add(l.Window)}
		return true, 0
	}
	e.count++
	if e.count <= l.Requests {
		return true, 0
	}
	return false, e.windowAt.Sub(now)
}

// Cleanup removes expired entries.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, e := range rl.entries {
		if now.After(e.windowAt) {
			delete(rl.entries, key)
		}
	}
}

// KeyByIP buckets requests per client address under a named scope.
func KeyByIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + RealIP(r)
	}
}

// KeyByUser buckets requests per authenticated account, so a parent sending
// invites from several devices shares one budget. Unauthenticated requests
// fall back to the client address.
func KeyByUser(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		if id := auth.UserID(r.Context()); id != 0 {
			return scope + ":user:" + strconv.FormatInt(id, 10)
		}
		return scope + ":" + RealIP(r)
	}
}

// RateLimit returns middleware that rate-limits requests by a key function.
// Rejected requests get 429 with a Retry-After header in whole seconds.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, l Limit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := limiter.Allow(keyFunc(r), l)
			if !ok {
				secs := int(math.Ceil(retryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
