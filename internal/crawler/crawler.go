package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"online-school/internal/catalogue"
	"online-school/internal/config"
	"online-school/internal/fetcher"
	robotsclient "online-school/internal/robots"
	"online-school/pkg/types"
)

const (
	crawledLanguage = "دری"
	crawledSource   = "MOE"
)

// RobotsPolicy decides whether a seed may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// Deps are the collaborators a Crawler needs. Robots and Limiter are optional.
type Deps struct {
	Fetcher fetcher.Fetcher
	Robots  RobotsPolicy
	Limiter *DomainLimiter
	Books   catalogue.BookRepository
	Logger  *slog.Logger
}

// Crawler discovers PDF links on seed pages and appends unseen ones to the
// book catalogue.
type Crawler struct {
	fetcher       fetcher.Fetcher
	robots        RobotsPolicy
	limiter       *DomainLimiter
	books         catalogue.BookRepository
	logger        *slog.Logger
	allowedDomain string
	render        bool
	now           func() time.Time
}

// SeedReport describes what one seed contributed.
type SeedReport struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Discovered int    `json:"discovered"`
	Accepted   int    `json:"accepted"`
	Error      string `json:"error,omitempty"`
}

// Report summarises a crawl run.
type Report struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Seeds      []SeedReport     `json:"seeds"`
	Candidates int              `json:"candidates"`
	Duplicates int              `json:"duplicates"`
	Added      []catalogue.Book `json:"added"`
}

// New builds a Crawler restricted to allowedDomain and its subdomains.
func New(deps Deps, allowedDomain string, render bool) *Crawler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		fetcher:       deps.Fetcher,
		robots:        deps.Robots,
		limiter:       deps.Limiter,
		books:         deps.Books,
		logger:        logger,
		allowedDomain: strings.ToLower(strings.TrimSpace(allowedDomain)),
		render:        render,
		now:           time.Now,
	}
}

// NewFromConfig assembles the HTTP fetcher, optional renderer, robots agent
// and domain limiter described by cfg.
func NewFromConfig(cfg config.Config, books catalogue.BookRepository, logger *slog.Logger) (*Crawler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:    cfg.Crawl.UserAgent,
		Headers:      cfg.Crawl.Headers,
		Timeout:      cfg.Crawl.RequestTimeout.Duration,
		MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
		ProxyURL:     cfg.Crawl.ProxyURL,
		Instrument:   cfg.Telemetry.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("http fetcher: %w", err)
	}

	var renderer fetcher.Renderer
	if cfg.Rendering.Enabled {
		switch strings.ToLower(cfg.Rendering.Engine) {
		case "chromedp", "chrome":
			renderer = fetcher.NewChromedpRenderer(fetcher.RenderOptions{
				Timeout:         cfg.Rendering.Timeout.Duration,
				WaitForSelector: cfg.Rendering.WaitForSelector,
				UserAgent:       cfg.Crawl.UserAgent,
				MaxBodyBytes:    cfg.Crawl.MaxBodyBytes,
				DisableHeadless: cfg.Rendering.DisableHeadless,
			}, logger)
		case "none":
		default:
			return nil, fmt.Errorf("unsupported rendering engine %q", cfg.Rendering.Engine)
		}
	}

	return New(Deps{
		Fetcher: fetcher.NewComposite(httpFetcher, renderer, logger),
		Robots:  robotsclient.NewAgent(cfg.Robots, httpFetcher.Client(), logger),
		Limiter: NewDomainLimiter(cfg.Crawl.PerDomainDelay.Duration, cfg.Crawl.RateLimitPerDomain),
		Books:   books,
		Logger:  logger,
	}, cfg.Crawl.AllowedDomain, renderer != nil), nil
}

// Run fetches seeds one at a time, collects allowed PDF links and merges the
// unseen ones into the book catalogue with a single write. A failing seed is
// logged and contributes nothing; only catalogue errors are returned.
func (c *Crawler) Run(ctx context.Context, seeds []string) (Report, error) {
	report := Report{StartedAt: c.now().UTC(), Seeds: make([]SeedReport, 0, len(seeds)), Added: []catalogue.Book{}}
	candidates := make(map[string]struct{})

	for _, seed := range seeds {
		c.logger.Info("fetching seed", "url", seed)
		sr := c.crawlSeed(ctx, seed, candidates)
		report.Seeds = append(report.Seeds, sr)
	}
	report.Candidates = len(candidates)
	c.logger.Info("crawl discovered pdfs", "candidates", len(candidates))

	if len(candidates) == 0 {
		report.FinishedAt = c.now().UTC()
		return report, nil
	}

	added, dups, err := c.merge(ctx, candidates)
	report.FinishedAt = c.now().UTC()
	if err != nil {
		return report, err
	}
	report.Added = added
	report.Duplicates = dups
	return report, nil
}

func (c *Crawler) crawlSeed(ctx context.Context, seed string, into map[string]struct{}) SeedReport {
	sr := SeedReport{URL: seed}
	fail := func(msg string, err error) SeedReport {
		sr.Error = msg
		if err != nil {
			sr.Error = msg + ": " + err.Error()
		}
		c.logger.Warn("seed skipped", "url", seed, "reason", sr.Error)
		return sr
	}

	target, err := url.Parse(seed)
	if err != nil || !target.IsAbs() {
		return fail("invalid seed url", err)
	}
	if c.robots != nil && !c.robots.Allowed(ctx, target) {
		return fail("disallowed by robots.txt", nil)
	}
	if err := c.limiter.Wait(ctx, target.Hostname()); err != nil {
		return fail("rate limiter interrupted", err)
	}

	page, err := c.fetcher.Fetch(ctx, types.FetchRequest{URL: target, Render: c.render})
	if err != nil {
		return fail("fetch failed", err)
	}
	sr.StatusCode = page.StatusCode
	if !page.OK() {
		return fail(fmt.Sprintf("unexpected status %d", page.StatusCode), nil)
	}
	sr.Title = pageTitle(page.Body)

	// Links resolve against the seed as given, not the post-redirect url.
	links := ExtractPDFLinks(string(page.Body), seed)
	sr.Discovered = len(links)
	for link := range links {
		if !c.accept(link) {
			continue
		}
		sr.Accepted++
		into[link] = struct{}{}
	}
	c.logger.Debug("seed processed", "url", seed, "discovered", sr.Discovered, "accepted", sr.Accepted)
	return sr
}

// accept keeps http(s) links on the allowed domain whose path ends in .pdf.
func (c *Crawler) accept(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host != c.allowedDomain && !strings.HasSuffix(host, "."+c.allowedDomain) {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

func (c *Crawler) merge(ctx context.Context, candidates map[string]struct{}) ([]catalogue.Book, int, error) {
	doc, err := c.books.LoadBooks(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load books: %w", err)
	}
	existing := doc.URLs()

	urls := make([]string, 0, len(candidates))
	for u := range candidates {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	added := make([]catalogue.Book, 0, len(urls))
	dups := 0
	for _, u := range urls {
		if _, ok := existing[u]; ok {
			dups++
			continue
		}
		meta := InferMetadata(filenameOf(u))
		book := catalogue.Book{
			ID:       catalogue.NewID("auto"),
			Title:    meta.Title(),
			Grade:    meta.Grade,
			Subject:  meta.Subject,
			Language: crawledLanguage,
			Source:   crawledSource,
			URL:      u,
		}
		doc.Books = append(doc.Books, book)
		existing[u] = struct{}{}
		added = append(added, book)
		c.logger.Info("added book", "url", u, "subject", meta.Subject)
	}

	if len(added) == 0 {
		return added, dups, nil
	}
	if err := c.books.SaveBooks(ctx, doc); err != nil {
		return nil, dups, fmt.Errorf("save books: %w", err)
	}
	c.logger.Info("book catalogue updated", "added", len(added), "duplicates", dups, "total", len(doc.Books))
	return added, dups, nil
}

func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
