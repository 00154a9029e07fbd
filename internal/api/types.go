package api

import (
	"online-school/internal/catalogue"
	"online-school/internal/crawler"
)

// CrawlRequest optionally overrides the configured seeds for one crawl.
type CrawlRequest struct {
	Seeds []string `json:"seeds,omitempty"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type booksResponse struct {
	OK    bool             `json:"ok"`
	Books []catalogue.Book `json:"books"`
}

type bookResponse struct {
	OK   bool           `json:"ok"`
	Book catalogue.Book `json:"book"`
}

type quizzesResponse struct {
	OK      bool             `json:"ok"`
	Quizzes []catalogue.Quiz `json:"quizzes"`
}

type quizResponse struct {
	OK   bool           `json:"ok"`
	Quiz catalogue.Quiz `json:"quiz"`
}

type crawlResponse struct {
	OK     bool           `json:"ok"`
	Report crawler.Report `json:"report"`
}
