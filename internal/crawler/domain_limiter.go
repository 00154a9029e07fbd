package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"online-school/internal/config"
)

// DomainLimiter spaces out requests to the same host. Seeds usually share one
// host, so this is what keeps a crawl polite.
type DomainLimiter struct {
	delay    time.Duration
	requests int
	window   time.Duration

	mu       sync.Mutex
	last     map[string]time.Time
	limiters map[string]*rate.Limiter
}

// NewDomainLimiter combines a fixed per-host delay with an optional token bucket.
func NewDomainLimiter(delay time.Duration, rl config.RateLimitConfig) *DomainLimiter {
	d := &DomainLimiter{
		delay: delay,
		last:  make(map[string]time.Time),
	}
	if rl.Enabled() {
		d.requests = rl.Requests
		d.window = rl.Window.Duration
		d.limiters = make(map[string]*rate.Limiter)
	}
	return d
}

// Wait blocks until the host may be contacted again.
func (d *DomainLimiter) Wait(ctx context.Context, host string) error {
	if d == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)
	if d.delay <= 0 && d.limiters == nil {
		return nil
	}

	var sleep time.Duration
	var limiter *rate.Limiter

	d.mu.Lock()
	if last, ok := d.last[host]; ok && d.delay > 0 {
		if rest := time.Until(last.Add(d.delay)); rest > 0 {
			sleep = rest
		}
	}
	if d.limiters != nil {
		limiter = d.limiterLocked(host)
	}
	d.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.last[host] = time.Now()
	d.mu.Unlock()
	return nil
}

func (d *DomainLimiter) limiterLocked(host string) *rate.Limiter {
	if l, ok := d.limiters[host]; ok {
		return l
	}
	interval := d.window / time.Duration(d.requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	l := rate.NewLimiter(rate.Every(interval), d.requests)
	d.limiters[host] = l
	return l
}
