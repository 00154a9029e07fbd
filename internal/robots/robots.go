// Package robots answers whether the crawler may fetch a seed page.
package robots

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"online-school/internal/config"
)

const (
	defaultTTL = 30 * time.Minute
	// failureTTL bounds how long an unreachable robots.txt is treated as
	// allowing everything before it is retried.
	failureTTL    = 5 * time.Minute
	maxRobotsSize = 512 << 10
)

// allowAll is what robotstxt produces for a missing file.
var allowAll, _ = robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)

// Agent caches one robots.txt per host.
type Agent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	respect   bool
	overrides map[string]bool
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	rules   *robotstxt.RobotsData
	expires time.Time
}

func NewAgent(cfg config.RobotsConfig, client *http.Client, logger *slog.Logger) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.CacheTTL.Duration
	if ttl <= 0 {
		ttl = defaultTTL
	}
	overrides := make(map[string]bool, len(cfg.Overrides))
	for _, host := range cfg.Overrides {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			overrides[host] = true
		}
	}
	return &Agent{
		client:    client,
		userAgent: cfg.UserAgent,
		ttl:       ttl,
		respect:   cfg.Respect,
		overrides: overrides,
		logger:    logger,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
}

// Allowed reports whether target may be fetched. Relative URLs never are.
// A robots.txt that cannot be read allows everything.
func (a *Agent) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}
	if a == nil || !a.respect || a.overrides[strings.ToLower(target.Hostname())] {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	return a.rulesFor(ctx, target).TestAgent(path, a.userAgent)
}

func (a *Agent) rulesFor(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(target.Host)
	now := a.now()

	a.mu.Lock()
	entry, ok := a.cache[host]
	a.mu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.rules
	}

	rules, err := a.fetch(ctx, target.Scheme+"://"+target.Host+"/robots.txt")
	ttl := a.ttl
	if err != nil {
		a.logger.Warn("robots.txt unavailable, allowing", "host", host, "error", err)
		rules = allowAll
		ttl = min(ttl, failureTTL)
	}

	a.mu.Lock()
	a.cache[host] = cacheEntry{rules: rules, expires: now.Add(ttl)}
	a.mu.Unlock()
	return rules
}

// fetch downloads and parses robots.txt. 4xx means no rules; 5xx and
// transport failures are errors.
func (a *Agent) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}

// Purge drops the cached rules for host.
func (a *Agent) Purge(host string) {
	a.mu.Lock()
	delete(a.cache, strings.ToLower(strings.TrimSpace(host)))
	a.mu.Unlock()
}
