package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rupor-github/gencfg"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadConfiguration() returned nil config")
	}
	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
}

func TestConfig_DefaultValues(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"rights", cfg.Book.Rights, "Copyright respective page authors"},
		{"publisher", cfg.Book.Publisher, "Rupesh Kumar"},
		{"identifier", cfg.Book.Identifier, "978-1449921880"},
		{"subject", cfg.Book.Subject, "Blogs"},
		{"description", cfg.Book.Description, "Articles extracted from blogs for archive purposes"},
		{"language", cfg.Book.Language, "en"},
		{"output name template", cfg.Document.OutputNameTemplate, "{{ .Title }}"},
		{"console level", cfg.Logging.ConsoleLogger.Level, "normal"},
		{"file level", cfg.Logging.FileLogger.Level, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}

	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("Fetch.Timeout = %v, want 30s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.RetryCount != 0 {
		t.Errorf("Fetch.RetryCount = %d, want 0", cfg.Fetch.RetryCount)
	}
	if cfg.Fetch.MaxSize != 32<<20 {
		t.Errorf("Fetch.MaxSize = %d, want %d", cfg.Fetch.MaxSize, 32<<20)
	}
	if len(cfg.Document.StripElements) == 0 || cfg.Document.StripElements[0] != "script" {
		t.Errorf("Document.StripElements = %v, expected script first", cfg.Document.StripElements)
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	path := writeConfig(t, `version: 1
book:
  publisher: "Somebody Else"
  language: "de"
fetch:
  timeout: 5s
  retry_count: 2
  cookie: "session=42"
document:
  fix_zip: true
  verify: true
  strip_elements: ["script"]
  cover:
    max_width: 600
    max_height: 800
logging:
  console:
    level: debug
`)

	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if cfg.Book.Publisher != "Somebody Else" {
		t.Errorf("Book.Publisher = %q, want %q", cfg.Book.Publisher, "Somebody Else")
	}
	// values absent from the file keep defaults
	if cfg.Book.Rights != "Copyright respective page authors" {
		t.Errorf("Book.Rights = %q, expected default", cfg.Book.Rights)
	}
	if cfg.Book.Language != "de" {
		t.Errorf("Book.Language = %q, want de", cfg.Book.Language)
	}
	if cfg.Fetch.Timeout != 5*time.Second {
		t.Errorf("Fetch.Timeout = %v, want 5s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.RetryCount != 2 {
		t.Errorf("Fetch.RetryCount = %d, want 2", cfg.Fetch.RetryCount)
	}
	if cfg.Fetch.Cookie.Reveal() != "session=42" {
		t.Errorf("Fetch.Cookie = %q, want session=42", cfg.Fetch.Cookie.Reveal())
	}
	if !cfg.Document.FixZip || !cfg.Document.Verify {
		t.Error("Expected FixZip and Verify to be true")
	}
	if cfg.Document.Cover.MaxWidth != 600 || cfg.Document.Cover.MaxHeight != 800 {
		t.Errorf("Cover = %+v, want 600x800", cfg.Document.Cover)
	}
	if cfg.Logging.ConsoleLogger.Level != "debug" {
		t.Errorf("Console level = %q, want debug", cfg.Logging.ConsoleLogger.Level)
	}
}

func TestLoadConfiguration_NonExistentFile(t *testing.T) {
	if _, err := LoadConfiguration("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestLoadConfiguration_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "invalid yaml",
			content: `version: 1
document:
  fix_zip: true
  invalid indent
`,
		},
		{
			name: "unknown field",
			content: `version: 1
unknown_field: value
`,
		},
		{
			name:    "wrong version",
			content: "version: 2\n",
		},
		{
			name: "bad language",
			content: `version: 1
book:
  language: "not a language tag"
`,
		},
		{
			name: "zero timeout",
			content: `version: 1
fetch:
  timeout: 0s
`,
		},
		{
			name: "bad log level",
			content: `version: 1
logging:
  console:
    level: loud
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfiguration(writeConfig(t, tt.content)); err == nil {
				t.Errorf("LoadConfiguration() expected error for %s", tt.name)
			}
		})
	}
}

func TestLoadConfiguration_WithOptions(t *testing.T) {
	option := func(opts *gencfg.ProcessingOptions) {}

	cfg, err := LoadConfiguration("", option)
	if err != nil {
		t.Fatalf("LoadConfiguration() with options error = %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadConfiguration() returned nil config")
	}
}

func TestPrepare(t *testing.T) {
	data, err := Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Prepare() returned empty data")
	}
	// output name template must survive expansion untouched
	if !strings.Contains(string(data), "{{ .Title }}") {
		t.Error("Prepare() expanded output_name_template")
	}
	if _, err := unmarshalConfig(data, &Config{}, true); err != nil {
		t.Errorf("Prepared config is not valid: %v", err)
	}
}

func TestDump_HidesSecrets(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	cfg.Fetch.Cookie = "session=very-secret"

	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if strings.Contains(string(data), "very-secret") {
		t.Error("Dump() leaked cookie value")
	}
	if !strings.Contains(string(data), "publisher: Rupesh Kumar") {
		t.Errorf("Dump() missing publisher:\n%s", data)
	}

	// dumped configuration could be loaded back
	back, err := unmarshalConfig(data, &Config{}, false)
	if err != nil {
		t.Fatalf("unmarshalConfig() of dumped data error = %v", err)
	}
	if back.Fetch.Timeout != cfg.Fetch.Timeout {
		t.Errorf("Timeout after dump = %v, want %v", back.Fetch.Timeout, cfg.Fetch.Timeout)
	}
}
