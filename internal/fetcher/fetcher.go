// Package fetcher downloads seed pages for the MOE crawler, either as raw
// HTTP responses or as a headless-browser rendering.
package fetcher

import (
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"online-school/pkg/types"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 6 << 20
	maxRedirects        = 5
)

// decoders maps a Content-Encoding token to a body decoder. The keys also form
// the Accept-Encoding header, so only encodings listed here are requested.
var decoders = map[string]func(io.Reader) (io.ReadCloser, error){
	"gzip": func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) },
	"br": func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(brotli.NewReader(r)), nil
	},
	"deflate": func(r io.Reader) (io.ReadCloser, error) { return zlib.NewReader(r) },
}

var acceptEncoding = func() string {
	names := make([]string, 0, len(decoders))
	for name := range decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}()

// Fetcher retrieves a seed page for the crawler.
type Fetcher interface {
	Fetch(ctx context.Context, req types.FetchRequest) (*types.Page, error)
}

// Options controls HTTP fetching.
type Options struct {
	UserAgent    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxBodyBytes int64
	ProxyURL     string
	// Instrument wraps the transport with OpenTelemetry client spans.
	Instrument bool
}

// HTTPFetcher fetches seed pages with a plain http.Client.
type HTTPFetcher struct {
	client  *http.Client
	header  http.Header
	maxBody int64
}

// NewHTTPFetcher builds a fetcher from opts. Zero values get the crawl defaults.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if raw := strings.TrimSpace(opts.ProxyURL); raw != "" {
		proxy, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}
	var rt http.RoundTripper = transport
	if opts.Instrument {
		rt = otelhttp.NewTransport(transport)
	}

	header := make(http.Header)
	header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	header.Set("Accept-Language", "fa-AF,ps;q=0.9,en;q=0.8")
	header.Set("Accept-Encoding", acceptEncoding)
	if opts.UserAgent != "" {
		header.Set("User-Agent", opts.UserAgent)
	}
	for k, v := range opts.Headers {
		header.Set(k, v)
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: rt,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		header:  header,
		maxBody: opts.MaxBodyBytes,
	}, nil
}

// Fetch downloads req.URL. A non-2xx response is returned as a page, not an
// error; the crawler decides what it means.
func (f *HTTPFetcher) Fetch(ctx context.Context, req types.FetchRequest) (*types.Page, error) {
	if req.URL == nil {
		return nil, errors.New("request URL is nil")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header = f.header.Clone()

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := f.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}

	return &types.Page{
		URL:             req.URL,
		FinalURL:        resp.Request.URL,
		Body:            body,
		ContentType:     resp.Header.Get("Content-Type"),
		StatusCode:      resp.StatusCode,
		Headers:         resp.Header,
		FetchedAt:       time.Now(),
		ResponseLatency: time.Since(start),
	}, nil
}

// readBody decodes the response and reads at most maxBody bytes of it.
func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc != "" && enc != "identity" {
		decode, ok := decoders[enc]
		if !ok {
			return nil, fmt.Errorf("unsupported content encoding %q", enc)
		}
		dec, err := decode(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%s decode: %w", enc, err)
		}
		defer dec.Close()
		r = dec
	}

	body, err := io.ReadAll(io.LimitReader(r, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBody)
	}
	return body, nil
}

// Client exposes the underlying client so robots.txt fetches share its
// transport, proxy and timeout.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// Renderer returns the DOM of a page after its scripts have run.
type Renderer interface {
	Render(ctx context.Context, req types.FetchRequest) (*types.Page, error)
}

// Composite renders seeds when asked to and falls back to plain HTTP when no
// renderer is configured or rendering fails.
type Composite struct {
	http     Fetcher
	renderer Renderer
	logger   *slog.Logger
}

// NewComposite combines an HTTP fetcher with an optional renderer.
func NewComposite(httpFetcher Fetcher, renderer Renderer, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{http: httpFetcher, renderer: renderer, logger: logger}
}

func (c *Composite) Fetch(ctx context.Context, req types.FetchRequest) (*types.Page, error) {
	if !req.Render || c.renderer == nil {
		req.Render = false
		return c.http.Fetch(ctx, req)
	}
	page, err := c.renderer.Render(ctx, req)
	if err == nil {
		return page, nil
	}
	c.logger.Warn("render failed, fetching over http", "url", req.URL.String(), "error", err)
	req.Render = false
	return c.http.Fetch(ctx, req)
}
