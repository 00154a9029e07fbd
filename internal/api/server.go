package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"online-school/internal/catalogue"
	"online-school/internal/crawler"
	"online-school/internal/storage"
)

// ErrCrawlRunning is returned when a crawl is requested while another one is
// still in progress.
var ErrCrawlRunning = errors.New("a crawl is already running")

const multipartMemory = 8 << 20

// Catalogue is the subset of catalogue.Service the handlers use.
type Catalogue interface {
	ListBooks(ctx context.Context, filter catalogue.BookFilter) ([]catalogue.Book, error)
	AddBook(ctx context.Context, in catalogue.NewBook) (catalogue.Book, error)
	AddUpload(ctx context.Context, in catalogue.NewBook) (catalogue.Book, error)
	ListQuizzes(ctx context.Context, filter catalogue.QuizFilter) ([]catalogue.Quiz, error)
	AddQuiz(ctx context.Context, in catalogue.NewQuiz) (catalogue.Quiz, error)
}

// Crawler runs one crawl over the given seeds.
type Crawler interface {
	Run(ctx context.Context, seeds []string) (crawler.Report, error)
}

// Uploads stores uploaded files.
type Uploads interface {
	Save(ctx context.Context, originalName, contentType string, r io.Reader) (storage.Upload, error)
	Dir() string
}

// Options tunes the server.
type Options struct {
	PublicDir      string
	MaxUploadBytes int64
	Seeds          []string
	Logger         *slog.Logger
}

// Server exposes the catalogue, uploads and crawl trigger over HTTP.
type Server struct {
	catalogue Catalogue
	crawler   Crawler
	uploads   Uploads
	opts      Options
	logger    *slog.Logger
	crawling  atomic.Bool
	mux       *http.ServeMux
}

// NewServer wires handlers onto an HTTP mux. crawler and uploads may be nil,
// which disables the matching endpoints.
func NewServer(cat Catalogue, crawl Crawler, uploads Uploads, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		catalogue: cat,
		crawler:   crawl,
		uploads:   uploads,
		opts:      opts,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.HandleFunc("/api/upload", s.handleUpload)
	s.mux.HandleFunc("/api/quizzes", s.handleQuizzes)
	s.mux.HandleFunc("/api/crawl", s.handleCrawl)
	s.mux.HandleFunc("/api/", s.handleAPINotFound)
	s.mux.HandleFunc("/openapi.yaml", s.handleOpenAPI)
	s.mux.HandleFunc("/docs", s.handleDocs)
	if s.uploads != nil {
		s.mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploads.Dir()))))
	}
	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBooks(w, r)
	case http.MethodPost:
		s.addBook(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	books, err := s.catalogue.ListBooks(r.Context(), catalogue.BookFilter{
		Query:   q.Get("q"),
		Grade:   gradeParam(q.Get("grade")),
		Subject: q.Get("subject"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booksResponse{OK: true, Books: books})
}

func (s *Server) addBook(w http.ResponseWriter, r *http.Request) {
	var req catalogue.NewBook
	if !s.decodeJSON(w, r, &req) {
		return
	}
	book, err := s.catalogue.AddBook(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookResponse{OK: true, Book: book})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if s.uploads == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "uploads are disabled"})
		return
	}
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no file uploaded"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("pdf")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no file uploaded"})
		return
	}
	defer file.Close()

	up, err := s.uploads.Save(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		if errors.Is(err, storage.ErrEmptyUpload) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no file uploaded"})
			return
		}
		s.writeError(w, r, err)
		return
	}

	book, err := s.catalogue.AddUpload(r.Context(), uploadedBook(r.MultipartForm, header, up))
	if err != nil {
		if rmErr := os.Remove(up.Path); rmErr != nil {
			s.logger.Warn("remove orphaned upload", "path", up.Path, "error", rmErr)
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookResponse{OK: true, Book: book})
}

func uploadedBook(form *multipart.Form, header *multipart.FileHeader, up storage.Upload) catalogue.NewBook {
	value := func(key string) string {
		if vals := form.Value[key]; len(vals) > 0 {
			return strings.TrimSpace(vals[0])
		}
		return ""
	}
	title := value("title")
	if title == "" {
		title = header.Filename
	}
	return catalogue.NewBook{
		Title:    title,
		Grade:    catalogue.GradeInput(value("grade")),
		Subject:  value("subject"),
		URL:      up.URL,
		Language: value("language"),
		Source:   value("source"),
	}
}

func (s *Server) handleQuizzes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		quizzes, err := s.catalogue.ListQuizzes(r.Context(), catalogue.QuizFilter{
			Grade:   gradeParam(q.Get("grade")),
			Subject: q.Get("subject"),
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, quizzesResponse{OK: true, Quizzes: quizzes})
	case http.MethodPost:
		var req catalogue.NewQuiz
		if !s.decodeJSON(w, r, &req) {
			return
		}
		quiz, err := s.catalogue.AddQuiz(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, quizResponse{OK: true, Quiz: quiz})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if s.crawler == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "crawler is disabled"})
		return
	}

	var req CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid json payload: %v", err)})
		return
	}
	seeds := req.Seeds
	if len(seeds) == 0 {
		seeds = s.opts.Seeds
	}
	if len(seeds) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no seeds configured"})
		return
	}

	if !s.crawling.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: ErrCrawlRunning.Error()})
		return
	}
	defer s.crawling.Store(false)

	report, err := s.crawler.Run(r.Context(), seeds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, crawlResponse{OK: true, Report: report})
}

func (s *Server) handleAPINotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

// handleStatic serves the public directory and falls back to index.html so
// client-side routes resolve.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.opts.PublicDir == "" || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		http.NotFound(w, r)
		return
	}
	clean := path.Clean("/" + r.URL.Path)
	target := filepath.Join(s.opts.PublicDir, filepath.FromSlash(clean))
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		http.ServeFile(w, r, target)
		return
	}
	index := filepath.Join(s.opts.PublicDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, index)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid json payload: %v", err)})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case catalogue.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, catalogue.ErrDuplicateURL):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// gradeParam mirrors the lenient query parsing clients rely on: anything that
// is not a positive integer disables the grade filter.
func gradeParam(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
