package server

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an idle client's bucket is kept.
const limiterIdleTTL = 10 * time.Minute

// maxTrackedClients bounds the bucket table before idle entries are swept.
const maxTrackedClients = 10000

// RateLimiter keeps a token bucket per client address. Client addresses
// come from X-Forwarded-For only when the direct peer is a trusted proxy.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	proxies []netip.Prefix
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter from cfg. Invalid proxy CIDRs are an error.
func NewRateLimiter(cfg RateConfig, trustedProxies []string) (*RateLimiter, error) {
	proxies, err := parseProxies(trustedProxies)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{
		limit:   rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		proxies: proxies,
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}, nil
}

// Middleware rejects requests over the limit with a 429 problem carrying
// Retry-After. Requests for which applies returns false pass untouched.
func (l *RateLimiter) Middleware(applies func(*http.Request) bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if applies != nil && !applies(r) {
				next.ServeHTTP(w, r)
				return
			}
			if wait, ok := l.reserve(l.ClientIP(r)); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeProblem(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// reserve takes a token for client, or reports how long until one frees up.
func (l *RateLimiter) reserve(client string) (time.Duration, bool) {
	now := l.now()

	l.mu.Lock()
	b, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.sweep(now)
		}
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Second, false
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		if d < time.Second {
			d = time.Second
		}
		return d, false
	}
	return 0, true
}

// sweep drops idle buckets. Callers hold l.mu.
func (l *RateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for ip, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

// ClientIP returns the address a request is accounted to. The leftmost
// X-Forwarded-For entry is used only when the peer is a trusted proxy.
func (l *RateLimiter) ClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" || !l.trusted(peer) {
		return peer
	}
	first, _, _ := strings.Cut(xff, ",")
	if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
		return addr.String()
	}
	return peer
}

func (l *RateLimiter) trusted(peer string) bool {
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// parseProxies accepts CIDRs and bare addresses.
func parseProxies(list []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// isAPIRequest selects everything except the operational endpoints.
func isAPIRequest(quiet map[string]bool) func(*http.Request) bool {
	return func(r *http.Request) bool { return !quiet[r.URL.Path] }
}

// isSyncTrigger matches the requests that start an upstream sync pass:
// POST /api/v1/sync/* and the per-resource POST .../sync shortcuts.
func isSyncTrigger(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	p := r.URL.Path
	return strings.HasPrefix(p, "/api/v1/sync/") || strings.HasSuffix(p, "/sync")
}
