package types

import (
	"net/http"
	"net/url"
	"time"
)

// FetchRequest describes a single seed page the crawler wants downloaded.
type FetchRequest struct {
	URL    *url.URL
	Render bool
}

// Page represents the fetched content.
type Page struct {
	URL             *url.URL
	FinalURL        *url.URL
	Body            []byte
	ContentType     string
	StatusCode      int
	Headers         http.Header
	FetchedAt       time.Time
	Rendered        bool
	ResponseLatency time.Duration
}

// OK reports whether the page was served with a 2xx status.
func (p *Page) OK() bool {
	return p != nil && p.StatusCode >= 200 && p.StatusCode < 300
}
