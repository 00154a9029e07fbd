package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"online-school/internal/catalogue"
	"online-school/internal/crawler"
	"online-school/internal/storage"
)

type fakeCrawler struct {
	seeds  []string
	report crawler.Report
	err    error
	block  chan struct{}
}

func (f *fakeCrawler) Run(ctx context.Context, seeds []string) (crawler.Report, error) {
	f.seeds = seeds
	if f.block != nil {
		<-f.block
	}
	return f.report, f.err
}

type testEnv struct {
	server  *Server
	store   *catalogue.Store
	crawler *fakeCrawler
	uploads *storage.FileUploadStore
	public  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := catalogue.NewStore(filepath.Join(dir, "books.json"), filepath.Join(dir, "quizzes.json"), logger)
	if err := store.EnsureSeed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	uploads, err := storage.NewFileUploadStore(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatal(err)
	}
	public := filepath.Join(dir, "public")
	if err := os.MkdirAll(public, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(public, "index.html"), []byte("<html>portal</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(public, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}

	fc := &fakeCrawler{report: crawler.Report{Candidates: 1}}
	server := NewServer(catalogue.NewService(store, store, logger), fc, uploads, Options{
		PublicDir:      public,
		MaxUploadBytes: 1 << 20,
		Seeds:          []string{"https://moe.gov.af/"},
		Logger:         logger,
	})
	return &testEnv{server: server, store: store, crawler: fc, uploads: uploads, public: public}
}

func (e *testEnv) do(t *testing.T, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return v
}

func (e *testEnv) bookCount(t *testing.T) int {
	t.Helper()
	doc, err := e.store.LoadBooks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return len(doc.Books)
}

func TestServerHandlers(t *testing.T) {
	env := newTestEnv(t)

	assertRoute(t, env.server, http.MethodGet, "/health", http.StatusOK, "application/json")
	assertRoute(t, env.server, http.MethodGet, "/openapi.yaml", http.StatusOK, "application/yaml")
	assertRoute(t, env.server, http.MethodGet, "/docs", http.StatusOK, "text/html; charset=utf-8")
	assertRoute(t, env.server, http.MethodGet, "/api/books", http.StatusOK, "application/json")
	assertRoute(t, env.server, http.MethodGet, "/api/quizzes", http.StatusOK, "application/json")
	assertRoute(t, env.server, http.MethodGet, "/api/nope", http.StatusNotFound, "application/json")
	assertRoute(t, env.server, http.MethodDelete, "/api/books", http.StatusMethodNotAllowed, "application/json")
}

func TestDocsListsRoutesFromOpenAPI(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/docs", "", nil)
	body := rr.Body.String()
	for _, want := range []string{"<title>Online School API 1.0.0</title>", "<code>GET /api/books</code>", "<code>POST /api/crawl</code>"} {
		if !strings.Contains(body, want) {
			t.Errorf("docs page missing %q", want)
		}
	}

	rr = env.do(t, http.MethodGet, "/openapi.yaml", "", nil)
	if !strings.HasPrefix(rr.Body.String(), "openapi: 3.0.3") {
		t.Fatalf("unexpected openapi body %.40q", rr.Body.String())
	}
}

func TestListBooksFilters(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/books?grade=12&q=english", "", nil)
	resp := decode[booksResponse](t, rr)
	if !resp.OK || len(resp.Books) != 1 || resp.Books[0].ID != "en-g12" {
		t.Fatalf("unexpected books %+v", resp)
	}

	rr = env.do(t, http.MethodGet, "/api/books?grade=abc", "", nil)
	if resp := decode[booksResponse](t, rr); len(resp.Books) != 4 {
		t.Fatalf("non-numeric grade should not filter, got %d", len(resp.Books))
	}
}

func TestAddBook(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/books", "application/json",
		strings.NewReader(`{"title":"Physics G10","grade":"10","subject":"فزیک","url":"https://moe.gov.af/physics.pdf"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode[bookResponse](t, rr)
	if !resp.OK || resp.Book.Grade == nil || *resp.Book.Grade != 10 || resp.Book.ID == "" {
		t.Fatalf("unexpected book %+v", resp.Book)
	}
	if got := env.bookCount(t); got != 5 {
		t.Fatalf("expected 5 books, got %d", got)
	}

	rr = env.do(t, http.MethodPost, "/api/books", "application/json",
		strings.NewReader(`{"title":"again","url":"https://moe.gov.af/physics.pdf"}`))
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate url should conflict, got %d", rr.Code)
	}
}

func TestAddBookMissingURLLeavesCatalogueUnchanged(t *testing.T) {
	env := newTestEnv(t)
	before := env.bookCount(t)

	rr := env.do(t, http.MethodPost, "/api/books", "application/json", strings.NewReader(`{"title":"No url"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	resp := decode[errorResponse](t, rr)
	if resp.OK || resp.Error != "title and url required" {
		t.Fatalf("unexpected failure body %+v", resp)
	}
	if after := env.bookCount(t); after != before {
		t.Fatalf("catalogue changed from %d to %d", before, after)
	}

	rr = env.do(t, http.MethodPost, "/api/books", "application/json", strings.NewReader(`{"title":`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed json should be 400, got %d", rr.Code)
	}
}

func TestAddQuiz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/quizzes", "application/json", strings.NewReader(`{"title":"empty","questions":[]}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty questions must be rejected, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/quizzes", "application/json", strings.NewReader(
		`{"title":"bad index","questions":[{"prompt":"1+1","options":["1","2"],"answerIndex":2}]}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("out of range answerIndex must be rejected, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/quizzes", "application/json", strings.NewReader(
		`{"title":"ریاضی ۲","grade":9,"subject":"ریاضی","questions":[{"prompt":"1+1","options":["1","2"],"answerIndex":1}]}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/quizzes?grade=9", "", nil)
	resp := decode[quizzesResponse](t, rr)
	if len(resp.Quizzes) != 2 {
		t.Fatalf("expected 2 grade 9 quizzes, got %d", len(resp.Quizzes))
	}
}

func multipartBody(t *testing.T, fileField, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "pdf", "grade 7 math.pdf", []byte("%PDF-1.7"), map[string]string{"grade": "7"})
	rr := env.do(t, http.MethodPost, "/api/upload", ct, body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode[bookResponse](t, rr)
	book := resp.Book
	if book.Title != "grade 7 math.pdf" || book.Source != "uploaded" || !strings.HasPrefix(book.ID, "local-") {
		t.Fatalf("unexpected uploaded book %+v", book)
	}
	if !strings.HasPrefix(book.URL, "/uploads/") || !strings.HasSuffix(book.URL, "-grade_7_math.pdf") {
		t.Fatalf("unexpected upload url %q", book.URL)
	}

	served := env.do(t, http.MethodGet, book.URL, "", nil)
	if served.Code != http.StatusOK || served.Body.String() != "%PDF-1.7" {
		t.Fatalf("uploaded file not served: %d %q", served.Code, served.Body.String())
	}
}

func TestUploadFailures(t *testing.T) {
	env := newTestEnv(t)
	before := env.bookCount(t)

	body, ct := multipartBody(t, "", "", nil, map[string]string{"title": "nothing"})
	rr := env.do(t, http.MethodPost, "/api/upload", ct, body)
	if rr.Code != http.StatusBadRequest || decode[errorResponse](t, rr).Error != "no file uploaded" {
		t.Fatalf("missing file: got %d %s", rr.Code, rr.Body.String())
	}

	body, ct = multipartBody(t, "pdf", "x.pdf", []byte("%PDF"), map[string]string{"grade": "13"})
	rr = env.do(t, http.MethodPost, "/api/upload", ct, body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid grade: got %d", rr.Code)
	}
	entries, _ := os.ReadDir(env.uploads.Dir())
	if len(entries) != 0 {
		t.Fatalf("rejected upload left %d files", len(entries))
	}

	body, ct = multipartBody(t, "pdf", "big.pdf", bytes.Repeat([]byte("a"), 2<<20), nil)
	rr = env.do(t, http.MethodPost, "/api/upload", ct, body)
	if rr.Code != http.StatusRequestEntityTooLarge && rr.Code != http.StatusBadRequest {
		t.Fatalf("oversize upload: got %d", rr.Code)
	}
	if after := env.bookCount(t); after != before {
		t.Fatalf("catalogue changed from %d to %d", before, after)
	}
}

func TestCrawlEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/crawl", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(env.crawler.seeds) != 1 || env.crawler.seeds[0] != "https://moe.gov.af/" {
		t.Fatalf("configured seeds not used: %v", env.crawler.seeds)
	}
	if resp := decode[crawlResponse](t, rr); !resp.OK || resp.Report.Candidates != 1 {
		t.Fatalf("unexpected crawl response %+v", resp)
	}

	rr = env.do(t, http.MethodPost, "/api/crawl", "application/json", strings.NewReader(`{"seeds":["https://moe.gov.af/x/"]}`))
	if rr.Code != http.StatusOK || env.crawler.seeds[0] != "https://moe.gov.af/x/" {
		t.Fatalf("body seeds not used: %d %v", rr.Code, env.crawler.seeds)
	}

	env.crawler.err = errors.New("disk full")
	rr = env.do(t, http.MethodPost, "/api/crawl", "", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestCrawlEndpointRejectsConcurrentRuns(t *testing.T) {
	env := newTestEnv(t)
	env.crawler.block = make(chan struct{})

	done := make(chan int)
	go func() {
		rr := httptest.NewRecorder()
		env.server.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/crawl", nil))
		done <- rr.Code
	}()
	for !env.server.crawling.Load() {
		time.Sleep(time.Millisecond)
	}

	rr := env.do(t, http.MethodPost, "/api/crawl", "", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	close(env.crawler.block)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first crawl finished with %d", code)
	}
}

func TestStaticFallback(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/app.js", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "console.log(1)" {
		t.Fatalf("asset not served: %d %q", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/grade/9", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "portal") {
		t.Fatalf("unknown path should fall back to index.html: %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/../../etc/passwd", "", nil)
	if strings.Contains(rr.Body.String(), "root:") {
		t.Fatal("path traversal escaped the public directory")
	}
}

func TestMiddlewareChain(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	h := Chain(panicky, AccessLog(logger), Recover(logger), CORS("*"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("cors header missing")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/books", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight should short-circuit, got %d", rr.Code)
	}
}

func assertRoute(t *testing.T, h http.Handler, method, path string, wantStatus int, wantContentType string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d (body=%s)", method, path, wantStatus, rr.Code, rr.Body.String())
	}
	if wantContentType != "" {
		if got := rr.Header().Get("Content-Type"); got != wantContentType {
			t.Fatalf("%s %s: expected content-type %s, got %s", method, path, wantContentType, got)
		}
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("%s %s: expected non-empty body", method, path)
	}
}
