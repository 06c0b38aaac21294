// Package ratelimit throttles board writes per client so a stuck tablet
// cannot flood the allocation engine and the store behind it.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtqueue/internal/api/apiutil"
)

// Config holds rate limit configuration.
type Config struct {
	WritesPerWindow int           // Max mutating requests per client per window (default: 120)
	Window          time.Duration // Length of the counting window (default: 1m)
	TrustProxy      bool          // Read the client address from X-Forwarded-For

	// Clock for testing (nil uses real time)
	Clock clockwork.Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		WritesPerWindow: 120,
		Window:          time.Minute,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type entry struct {
	count   int
	firstAt time.Time
	lastAt  time.Time
}

// Limiter counts writes per client in fixed windows.
type Limiter struct {
	config *Config
	clock  clockwork.Clock

	mu       sync.Mutex
	byClient map[string]*entry

	cleanupOnce   sync.Once
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupWg     sync.WaitGroup
}

// New creates a limiter. A nil config uses DefaultConfig.
func New(config *Config) *Limiter {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.WritesPerWindow <= 0 {
		config.WritesPerWindow = defaults.WritesPerWindow
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        config,
		clock:         clock,
		byClient:      make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// Allow records one write for client and reports whether it may proceed.
// Rejected writes are not counted.
func (l *Limiter) Allow(client string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.byClient[client]
	if e == nil || now.Sub(e.firstAt) >= l.config.Window {
		l.byClient[client] = &entry{count: 1, firstAt: now, lastAt: now}
		return LimitResult{Allowed: true, Remaining: l.config.WritesPerWindow - 1}
	}
	if e.count >= l.config.WritesPerWindow {
		return LimitResult{
			Allowed:    false,
			RetryAfter: l.config.Window - now.Sub(e.firstAt),
		}
	}
	e.count++
	e.lastAt = now
	return LimitResult{Allowed: true, Remaining: l.config.WritesPerWindow - e.count}
}

// Middleware rejects mutating requests over the limit with 429.
// Reads and the board stream are never limited.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		client := GetClientIP(r, l.config.TrustProxy)
		result := l.Allow(client)
		if !result.Allowed {
			seconds := int((result.RetryAfter + time.Second - 1) / time.Second)
			log.Ctx(r.Context()).Warn().
				Str("event", "rate_limit_exceeded").
				Str("ip", client).
				Str("path", r.URL.Path).
				Dur("retry_after", result.RetryAfter).
				Msg("Board write rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			_ = apiutil.WriteJSON(w, http.StatusTooManyRequests, apiutil.ErrorResponse{
				Error: "Too many board changes, slow down",
				Kind:  "rate_limited",
			})
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := l.clock.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.Chan():
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.byClient {
		if now.Sub(e.lastAt) > l.config.Window {
			delete(l.byClient, k)
		}
	}
}

func (l *Limiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byClient)
}

// GetClientIP extracts the client IP from a request.
// When trustProxy is true, uses the rightmost public IP from X-Forwarded-For.
// When trustProxy is false, ignores X-Forwarded-For entirely.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				ip := strings.TrimSpace(parts[i])
				if ip != "" && !isPrivateIP(ip) {
					return ip
				}
			}
			return strings.TrimSpace(parts[len(parts)-1])
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port
		return r.RemoteAddr
	}
	return ip
}

var privateNetworks []*net.IPNet

func init() {
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
	for _, cidr := range privateRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid private CIDR: " + cidr)
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// isPrivateIP handles IPv4-mapped IPv6 addresses as IPv4.
func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
