package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestLoadFromReaderMergesDefaults(t *testing.T) {
	raw := `
server:
  addr: ":9000"
crawl:
  seeds:
    - " https://moe.gov.af/ "
    - "https://moe.gov.af/"
    - "https://moe.gov.af/sites/default/files/"
  allowed_domain: MOE.gov.af
  request_timeout: 3
  per_domain_delay: 500ms
logging:
  level: debug
`
	cfg, err := LoadFromReader(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if got := len(cfg.Crawl.Seeds); got != 2 {
		t.Fatalf("expected 2 deduplicated seeds, got %d (%v)", got, cfg.Crawl.Seeds)
	}
	if cfg.Crawl.AllowedDomain != "moe.gov.af" {
		t.Fatalf("allowed domain not lowered: %q", cfg.Crawl.AllowedDomain)
	}
	if cfg.Crawl.RequestTimeout.Duration != 3*time.Second {
		t.Fatalf("numeric timeout should be seconds, got %s", cfg.Crawl.RequestTimeout)
	}
	if cfg.Crawl.PerDomainDelay.Duration != 500*time.Millisecond {
		t.Fatalf("delay = %s", cfg.Crawl.PerDomainDelay)
	}
	if cfg.Storage.BooksFile != "books.json" {
		t.Fatalf("default books file lost: %q", cfg.Storage.BooksFile)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("crawl:\n  depth: 4\n"))
	if err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative seed", func(c *Config) { c.Crawl.Seeds = []string{"files/"} }},
		{"no allowed domain", func(c *Config) { c.Crawl.AllowedDomain = "" }},
		{"same document file", func(c *Config) { c.Storage.QuizzesFile = c.Storage.BooksFile }},
		{"zero timeout", func(c *Config) { c.Crawl.RequestTimeout = Duration{} }},
		{"zero upload cap", func(c *Config) { c.Server.MaxUploadBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	t.Setenv("PORT", "5050")
	t.Setenv("DATA_DIR", "/srv/school")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":5050" {
		t.Fatalf("PORT override not applied: %q", cfg.Server.Addr)
	}
	if got := cfg.Storage.BooksPath(); got != filepath.Join("/srv/school", "books.json") {
		t.Fatalf("books path = %q", got)
	}
}

func TestLoadOrDefaultBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrDefault(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestBuildLogger(t *testing.T) {
	if _, err := BuildLogger(LoggingConfig{Level: "verbose"}, os.Stderr); err == nil {
		t.Fatal("expected unsupported level error")
	}
	logger, err := BuildLogger(LoggingConfig{Level: "warn"}, os.Stderr)
	if err != nil || logger == nil {
		t.Fatalf("build logger: %v", err)
	}
}

func TestDurationYAML(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "d: 250ms", want: 250 * time.Millisecond},
		{raw: "d: 2", want: 2 * time.Second},
		{raw: "d: 1.5", want: 1500 * time.Millisecond},
		{raw: `d: ""`, want: 0},
		{raw: "d: soon", wantErr: true},
		{raw: "d: [1s]", wantErr: true},
	}
	for _, tc := range tests {
		var out struct {
			D Duration `yaml:"d"`
		}
		out.D = DurationFrom(time.Hour)
		err := yaml.Unmarshal([]byte(tc.raw), &out)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.raw, err)
			continue
		}
		if out.D.Duration != tc.want {
			t.Errorf("%q: got %s, want %s", tc.raw, out.D.Duration, tc.want)
		}
	}
}
