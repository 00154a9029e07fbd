package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"online-school/pkg/types"
)

// settleDelay gives scripts time to inject links after the awaited element
// appears.
const settleDelay = 500 * time.Millisecond

// RenderOptions configures headless rendering of seed pages whose PDF links
// are injected by JavaScript.
type RenderOptions struct {
	Timeout time.Duration
	// WaitForSelector is awaited before capture. Empty waits for <body>.
	WaitForSelector string
	UserAgent       string
	MaxBodyBytes    int64
	DisableHeadless bool
}

// ChromedpRenderer starts a browser per seed. Crawls visit a handful of seeds
// sequentially, so no browser is kept between calls.
type ChromedpRenderer struct {
	opts   RenderOptions
	logger *slog.Logger
}

func NewChromedpRenderer(opts RenderOptions, logger *slog.Logger) *ChromedpRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	opts.WaitForSelector = strings.TrimSpace(opts.WaitForSelector)
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromedpRenderer{opts: opts, logger: logger}
}

// Render loads the seed in Chrome and returns the DOM once it settles.
func (r *ChromedpRenderer) Render(ctx context.Context, req types.FetchRequest) (*types.Page, error) {
	if req.URL == nil {
		return nil, errors.New("render request URL is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !r.opts.DisableHeadless),
		chromedp.Flag("no-sandbox", true),
	)
	if r.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(r.opts.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer allocCancel()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	wait, mode := r.waitActions()
	var html, location string
	actions := append([]chromedp.Action{chromedp.Navigate(req.URL.String())}, wait...)
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)

	start := time.Now()
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("render %s: %w", req.URL, err)
	}
	if int64(len(html)) > r.opts.MaxBodyBytes {
		return nil, fmt.Errorf("rendered document exceeds limit of %d bytes", r.opts.MaxBodyBytes)
	}

	final := req.URL
	if u, err := url.Parse(location); err == nil && u.IsAbs() {
		final = u
	}
	latency := time.Since(start)
	r.logger.Debug("seed rendered", "url", req.URL.String(), "wait", mode, "bytes", len(html), "latency_ms", latency.Milliseconds())

	return &types.Page{
		URL:             req.URL,
		FinalURL:        final,
		Body:            []byte(html),
		ContentType:     "text/html; charset=utf-8",
		StatusCode:      200,
		FetchedAt:       time.Now(),
		Rendered:        true,
		ResponseLatency: latency,
	}, nil
}

func (r *ChromedpRenderer) waitActions() ([]chromedp.Action, string) {
	if r.opts.WaitForSelector != "" {
		return []chromedp.Action{chromedp.WaitReady(r.opts.WaitForSelector, chromedp.ByQuery), chromedp.Sleep(settleDelay)}, "selector"
	}
	return []chromedp.Action{chromedp.WaitReady("body", chromedp.ByQuery), chromedp.Sleep(settleDelay)}, "body"
}
