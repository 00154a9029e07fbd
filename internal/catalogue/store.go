package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrCorruptDocument is returned when a persisted document exists but cannot be decoded.
var ErrCorruptDocument = errors.New("catalogue document is corrupt")

// BookRepository loads and replaces the whole book document.
type BookRepository interface {
	LoadBooks(ctx context.Context) (*BookDocument, error)
	SaveBooks(ctx context.Context, doc *BookDocument) error
}

// QuizRepository loads and replaces the whole quiz document.
type QuizRepository interface {
	LoadQuizzes(ctx context.Context) (*QuizDocument, error)
	SaveQuizzes(ctx context.Context, doc *QuizDocument) error
}

// Store keeps the two catalogue documents as JSON files. Every call re-reads
// or rewrites the full file; there is no locking, so concurrent writers race
// and the last write wins.
type Store struct {
	booksPath   string
	quizzesPath string
	logger      *slog.Logger
	now         func() time.Time
}

// NewStore points a Store at the two document paths.
func NewStore(booksPath, quizzesPath string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		booksPath:   booksPath,
		quizzesPath: quizzesPath,
		logger:      logger,
		now:         time.Now,
	}
}

// EnsureSeed creates both documents with the default dataset if they are absent.
func (s *Store) EnsureSeed(ctx context.Context) error {
	if _, err := s.LoadBooks(ctx); err != nil {
		return err
	}
	if _, err := s.LoadQuizzes(ctx); err != nil {
		return err
	}
	return nil
}

// LoadBooks reads the book document, seeding it on first access.
func (s *Store) LoadBooks(ctx context.Context) (*BookDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc BookDocument
	found, err := readDocument(s.booksPath, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		seed := defaultBookDocument(s.now().UTC())
		if err := s.SaveBooks(ctx, seed); err != nil {
			return nil, err
		}
		s.logger.Info("seeded book catalogue", "path", s.booksPath, "books", len(seed.Books))
		return seed, nil
	}
	if doc.Books == nil {
		doc.Books = []Book{}
	}
	return &doc, nil
}

// SaveBooks replaces the book document on disk.
func (s *Store) SaveBooks(ctx context.Context, doc *BookDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.Books == nil {
		doc.Books = []Book{}
	}
	if doc.Meta.Created.IsZero() {
		doc.Meta.Created = s.now().UTC()
	}
	return writeDocument(s.booksPath, doc)
}

// LoadQuizzes reads the quiz document, seeding it on first access.
func (s *Store) LoadQuizzes(ctx context.Context) (*QuizDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc QuizDocument
	found, err := readDocument(s.quizzesPath, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		seed := defaultQuizDocument(s.now().UTC())
		if err := s.SaveQuizzes(ctx, seed); err != nil {
			return nil, err
		}
		s.logger.Info("seeded quiz catalogue", "path", s.quizzesPath, "quizzes", len(seed.Quizzes))
		return seed, nil
	}
	if doc.Quizzes == nil {
		doc.Quizzes = []Quiz{}
	}
	return &doc, nil
}

// SaveQuizzes replaces the quiz document on disk.
func (s *Store) SaveQuizzes(ctx context.Context, doc *QuizDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.Quizzes == nil {
		doc.Quizzes = []Quiz{}
	}
	if doc.Meta.Created.IsZero() {
		doc.Meta.Created = s.now().UTC()
	}
	return writeDocument(s.quizzesPath, doc)
}

func readDocument(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, path, err)
	}
	return true, nil
}

// writeDocument encodes v into a uniquely named sibling temp file, syncs it
// and renames it over path. Concurrent writers never share a temp file, so the
// document on disk is always one complete write.
func writeDocument(path string, v any) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err = enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err = os.Chmod(tmp, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
