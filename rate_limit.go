package portal

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginRateLimiter throttles login attempts per client IP.
type LoginRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
	staleTTL time.Duration
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

// NewLoginRateLimiter allows burst attempts and then r attempts per second
// for each IP.
func NewLoginRateLimiter(r rate.Limit, burst int) *LoginRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LoginRateLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     r,
		burst:    burst,
		staleTTL: 5 * time.Minute,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Allow reports whether ip may attempt a login now.
func (rl *LoginRateLimiter) Allow(ip string) bool {
	return rl.getLimiter(ip).AllowN(rl.now(), 1)
}

func (rl *LoginRateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, exists := rl.limiters[ip]; exists {
		l.lastSeen = rl.now()
		return l.limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[ip] = &ipLimiter{limiter: limiter, lastSeen: rl.now()}
	return limiter
}

// Sweep drops limiters that have not been used for a while.
func (rl *LoginRateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for ip, l := range rl.limiters {
		if rl.now().Sub(l.lastSeen) > rl.staleTTL {
			delete(rl.limiters, ip)
			removed++
		}
	}
	return removed
}

// StartCleanup sweeps stale entries every interval until Close is called.
func (rl *LoginRateLimiter) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = 3 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Sweep()
			case <-rl.stop:
				return
			}
		}
	}()
}

// Close stops the cleanup loop.
func (rl *LoginRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// Middleware rejects requests over the limit with onLimit, which should set a
// 429 response. A nil onLimit returns a plain 429.
func (rl *LoginRateLimiter) Middleware(onLimit fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.Allow(c.IP()) {
			return c.Next()
		}

		retryAfter := 1
		if rl.rate > 0 {
			retryAfter = max(int(1.0/float64(rl.rate)), 1)
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))

		if onLimit == nil {
			return c.Status(fiber.StatusTooManyRequests).SendString(MsgTooManyAttempts)
		}
		return onLimit(c)
	}
}
