package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// pdfHrefPattern matches a quoted href whose value ends in .pdf. Quotes are
// excluded from the value, so each match stops at the first closing quote.
var pdfHrefPattern = regexp.MustCompile(`(?i)href=["']([^"']+\.pdf)["']`)

// ExtractPDFLinks scans raw HTML for href attributes pointing at PDFs and
// returns the absolute URLs they resolve to against base. This is pattern
// matching, not a DOM parse: hrefs that do not parse or resolve are dropped.
func ExtractPDFLinks(rawHTML, base string) map[string]struct{} {
	links := make(map[string]struct{})
	// An unparsable base still lets absolute hrefs through.
	baseURL, _ := url.Parse(strings.TrimSpace(base))

	for _, m := range pdfHrefPattern.FindAllStringSubmatch(rawHTML, -1) {
		href := strings.TrimSpace(html.UnescapeString(m[1]))
		if href == "" {
			continue
		}
		resolved, ok := resolve(baseURL, href)
		if !ok {
			continue
		}
		links[resolved] = struct{}{}
	}
	return links
}

func resolve(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if !ref.IsAbs() {
		if base == nil || !base.IsAbs() {
			return "", false
		}
		ref = base.ResolveReference(ref)
	}
	if ref.Host == "" {
		return "", false
	}
	ref.Fragment = ""
	return ref.String(), true
}
