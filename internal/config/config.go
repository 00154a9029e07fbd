package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything the portal server and the crawler need at start-up.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Robots    RobotsConfig    `yaml:"robots"`
	Rendering RenderingConfig `yaml:"rendering"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	PublicDir      string `yaml:"public_dir"`
	CORSOrigin     string `yaml:"cors_origin"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// StorageConfig locates the catalogue documents and uploaded files.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	BooksFile   string `yaml:"books_file"`
	QuizzesFile string `yaml:"quizzes_file"`
	UploadsDir  string `yaml:"uploads_dir"`
}

// CrawlConfig controls seed fetching and link filtering.
type CrawlConfig struct {
	Seeds              []string          `yaml:"seeds"`
	AllowedDomain      string            `yaml:"allowed_domain"`
	UserAgent          string            `yaml:"user_agent"`
	Headers            map[string]string `yaml:"headers"`
	ProxyURL           string            `yaml:"proxy_url"`
	RequestTimeout     Duration          `yaml:"request_timeout"`
	MaxBodyBytes       int64             `yaml:"max_body_bytes"`
	PerDomainDelay     Duration          `yaml:"per_domain_delay"`
	RateLimitPerDomain RateLimitConfig   `yaml:"rate_limit_per_domain"`
}

// RateLimitConfig applies a token bucket per domain.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// RobotsConfig configures robots.txt handling.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	Overrides []string `yaml:"overrides"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// RenderingConfig controls optional JavaScript rendering of seed pages.
type RenderingConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Engine          string   `yaml:"engine"`
	Timeout         Duration `yaml:"timeout"`
	WaitForSelector string   `yaml:"wait_for_selector"`
	DisableHeadless bool     `yaml:"disable_headless"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// TelemetryConfig toggles OpenTelemetry HTTP instrumentation.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the settings used when no config file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":4000",
			PublicDir:      "public",
			CORSOrigin:     "*",
			MaxUploadBytes: 64 << 20,
		},
		Storage: StorageConfig{
			DataDir:     "data",
			BooksFile:   "books.json",
			QuizzesFile: "quizzes.json",
			UploadsDir:  "uploads",
		},
		Crawl: CrawlConfig{
			Seeds: []string{
				"https://moe.gov.af/",
				"https://moe.gov.af/sites/default/files/",
			},
			AllowedDomain:  "moe.gov.af",
			UserAgent:      "online-school-crawler/1.0",
			Headers:        map[string]string{},
			RequestTimeout: DurationFrom(10 * time.Second),
			MaxBodyBytes:   6 * 1024 * 1024,
			PerDomainDelay: DurationFrom(250 * time.Millisecond),
		},
		Robots: RobotsConfig{
			Respect:   true,
			Overrides: []string{},
			UserAgent: "online-school-crawler/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Rendering: RenderingConfig{
			Enabled: false,
			Engine:  "chromedp",
			Timeout: DurationFrom(15 * time.Second),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "online-school",
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadOrDefault behaves like Load but falls back to Default when the file does
// not exist. Environment overrides are applied in both cases.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		def := Default()
		def.normalise()
		cfg = &def
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv overlays PORT and DATA_DIR from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	if dir := strings.TrimSpace(getenv("DATA_DIR")); dir != "" {
		c.Storage.DataDir = dir
	}
}

// Validate enforces required invariants.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be > 0 (got %d)", c.Server.MaxUploadBytes)
	}
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir must be set")
	}
	if c.Storage.BooksFile == "" || c.Storage.QuizzesFile == "" {
		return errors.New("storage.books_file and storage.quizzes_file must be set")
	}
	if c.Storage.BooksFile == c.Storage.QuizzesFile {
		return errors.New("storage.books_file and storage.quizzes_file must differ")
	}
	if c.Storage.UploadsDir == "" {
		return errors.New("storage.uploads_dir must be set")
	}
	for i, seed := range c.Crawl.Seeds {
		u, err := url.Parse(seed)
		if err != nil || u.Host == "" {
			return fmt.Errorf("crawl seed %d (%q) is not an absolute url", i, seed)
		}
	}
	if c.Crawl.AllowedDomain == "" {
		return errors.New("crawl.allowed_domain must be set")
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawl.max_body_bytes must be > 0 (got %d)", c.Crawl.MaxBodyBytes)
	}
	if c.Crawl.RequestTimeout.Duration <= 0 {
		return errors.New("crawl.request_timeout must be > 0")
	}
	if rl := c.Crawl.RateLimitPerDomain; rl.Requests < 0 {
		return fmt.Errorf("crawl.rate_limit_per_domain.requests must be >= 0 (got %d)", rl.Requests)
	}
	if c.Crawl.UserAgent == "" {
		return errors.New("crawl.user_agent must be set")
	}
	if c.Robots.UserAgent == "" {
		return errors.New("robots.user_agent must be set")
	}
	return nil
}

func (c *Config) normalise() {
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Server.PublicDir = strings.TrimSpace(c.Server.PublicDir)
	c.Server.CORSOrigin = strings.TrimSpace(c.Server.CORSOrigin)

	c.Storage.DataDir = strings.TrimSpace(c.Storage.DataDir)
	c.Storage.BooksFile = strings.TrimSpace(c.Storage.BooksFile)
	c.Storage.QuizzesFile = strings.TrimSpace(c.Storage.QuizzesFile)
	c.Storage.UploadsDir = strings.TrimSpace(c.Storage.UploadsDir)

	seeds := make([]string, 0, len(c.Crawl.Seeds))
	seen := make(map[string]struct{}, len(c.Crawl.Seeds))
	for _, s := range c.Crawl.Seeds {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		seeds = append(seeds, s)
	}
	c.Crawl.Seeds = seeds
	c.Crawl.AllowedDomain = strings.ToLower(strings.TrimSpace(c.Crawl.AllowedDomain))
	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	if c.Crawl.Headers == nil {
		c.Crawl.Headers = make(map[string]string)
	}
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	if c.Robots.UserAgent == "" {
		c.Robots.UserAgent = c.Crawl.UserAgent
	}
	c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	return cleaned
}

// Enabled reports whether per-domain rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// BooksPath is the absolute-or-relative location of the book document.
func (s StorageConfig) BooksPath() string {
	return resolveIn(s.DataDir, s.BooksFile)
}

// QuizzesPath is the location of the quiz document.
func (s StorageConfig) QuizzesPath() string {
	return resolveIn(s.DataDir, s.QuizzesFile)
}

// UploadsPath is the directory uploaded PDFs are written to.
func (s StorageConfig) UploadsPath() string {
	return resolveIn(s.DataDir, s.UploadsDir)
}

func resolveIn(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
