package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// URLPrefix is where saved uploads are served from.
const URLPrefix = "/uploads/"

// ErrEmptyUpload is returned when an upload carries no bytes.
var ErrEmptyUpload = errors.New("empty upload")

const maxNameAttempts = 5

var whitespaceRun = regexp.MustCompile(`\s+`)

// Upload describes a file written by FileUploadStore.
type Upload struct {
	Name         string
	OriginalName string
	Path         string
	URL          string
	Size         int64
}

// FileUploadStore writes uploaded PDFs to a local directory.
type FileUploadStore struct {
	baseDir string
	now     func() time.Time
}

// NewFileUploadStore constructs a filesystem-backed upload store and creates
// its directory.
func NewFileUploadStore(baseDir string) (*FileUploadStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory must be provided")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &FileUploadStore{baseDir: baseDir, now: time.Now}, nil
}

// Dir returns the directory uploads are written to.
func (s *FileUploadStore) Dir() string {
	return s.baseDir
}

// Save streams r to disk as "<unix-ms>-<name>" with whitespace runs in the
// original name replaced by underscores.
func (s *FileUploadStore) Save(ctx context.Context, originalName, contentType string, r io.Reader) (Upload, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return Upload{}, ctx.Err()
		default:
		}
	}

	name := storedName(s.now(), originalName, contentType)
	fh, name, err := s.create(name)
	if err != nil {
		return Upload{}, err
	}
	fullPath := fh.Name()
	size, err := io.Copy(fh, r)
	if cerr := fh.Close(); err == nil {
		err = cerr
	}
	if err == nil && size == 0 {
		err = ErrEmptyUpload
	}
	if err != nil {
		_ = os.Remove(fullPath)
		return Upload{}, fmt.Errorf("write upload: %w", err)
	}

	return Upload{
		Name:         name,
		OriginalName: originalName,
		Path:         fullPath,
		URL:          URLPrefix + name,
		Size:         size,
	}, nil
}

// create opens name exclusively. When another upload already took the name in
// the same millisecond, a short random tag is inserted after the timestamp.
func (s *FileUploadStore) create(name string) (*os.File, string, error) {
	candidate := name
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		fh, err := os.OpenFile(filepath.Join(s.baseDir, candidate), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return fh, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create upload file: %w", err)
		}
		stamp, rest, _ := strings.Cut(name, "-")
		candidate = stamp + "-" + uuid.NewString()[:8] + "-" + rest
	}
	return nil, "", fmt.Errorf("create upload file: no free name for %q", name)
}

func storedName(now time.Time, originalName, contentType string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(originalName), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	base = whitespaceRun.ReplaceAllString(base, "_")
	if filepath.Ext(base) == "" {
		if ext := pickExtension(contentType); ext != "" {
			base += ext
		}
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + base
}

func pickExtension(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mediaType
	}
	if ct == "application/pdf" {
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(ct); err == nil {
		for _, ext := range exts {
			if ext != "" {
				return ext
			}
		}
	}
	return ""
}
