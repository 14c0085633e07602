package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"vidvault/httputil"
)

// Limiter is a per-client fixed-window rate limiter. Single-instance
// deployments only; state lives in memory.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	max     int
	period  time.Duration
}

type window struct {
	count   int
	started time.Time
}

// New creates a Limiter allowing max requests per period per client.
func New(max int, period time.Duration) *Limiter {
	l := &Limiter{
		clients: make(map[string]*window),
		max:     max,
		period:  period,
	}
	go func() {
		for {
			time.Sleep(5 * time.Minute)
			l.evictStale()
		}
	}()
	return l
}

func (l *Limiter) evictStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-2 * l.period)
	for key, w := range l.clients {
		if w.started.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

// Allow reports whether the client identified by key is within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.clients[key]
	if !ok || now.Sub(w.started) >= l.period {
		l.clients[key] = &window{count: 1, started: now}
		return true
	}
	if w.count >= l.max {
		return false
	}
	w.count++
	return true
}

// clientKey derives the rate-limit key from the request. Forwarding
// headers are only trusted for connections from loopback or private
// networks, so a direct client cannot spoof its way past the limit.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			if idx := strings.IndexByte(forwarded, ','); idx != -1 {
				forwarded = forwarded[:idx]
			}
			return strings.TrimSpace(forwarded)
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}
	return host
}

// Middleware answers HTTP 429 when the per-client rate is exceeded.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", "60")
				httputil.WriteJSON(w, 429, map[string]string{"error": "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
