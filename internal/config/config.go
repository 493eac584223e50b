// Package config loads gitmem configuration from a YAML file and GITMEM_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/gitmem/internal/logging"
	"github.com/fyrsmithlabs/gitmem/internal/telemetry"
	"github.com/fyrsmithlabs/gitmem/internal/vectorstore"
)

// Dir and File locate the configuration inside a workspace.
const (
	Dir  = ".memory"
	File = "config.yaml"
)

// Config holds the complete gitmem configuration.
type Config struct {
	// Namespaces is the closed set memories may be captured into.
	Namespaces []string `koanf:"namespaces"`

	// Backend selects the index: sqlite or qdrant.
	Backend string `koanf:"backend"`

	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Secrets    SecretsConfig    `koanf:"secrets"`
	SQLite     SQLiteConfig     `koanf:"sqlite"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Ledger     LedgerConfig     `koanf:"ledger"`
	Logging    logging.Config   `koanf:"logging"`
	Telemetry  telemetry.Config `koanf:"telemetry"`
	HTTP       HTTPConfig       `koanf:"http"`

	// Root is the workspace root relative paths were resolved against.
	Root string `koanf:"-"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	CacheDir  string   `koanf:"cache_dir"`
	Device    string   `koanf:"device"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	Timeout   Duration `koanf:"timeout"`
	Dimension int      `koanf:"dimension"`
	// RateLimit caps TEI requests per second. Zero is unlimited.
	RateLimit float64 `koanf:"rate_limit"`
}

// SecretsConfig controls redaction. The rule table itself is built in.
type SecretsConfig struct {
	Enabled   bool     `koanf:"enabled"`
	Gitleaks  bool     `koanf:"gitleaks"`
	AllowList []string `koanf:"allow_list"`
	// AllowListFile is a gitleaks-style TOML file whose [allowlist]
	// regexes extend AllowList. A missing file is ignored.
	AllowListFile string `koanf:"allow_list_file"`
}

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	Path         string `koanf:"path"`
	VectorPath   string `koanf:"vector_path"`
	VectorSearch bool   `koanf:"vector_search"`
	Compress     bool   `koanf:"compress"`
}

// QdrantConfig configures the qdrant backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	UseTLS     bool   `koanf:"use_tls"`
}

// LedgerConfig locates the git notes ledger.
type LedgerConfig struct {
	// Namespace is the notes ref, e.g. refs/notes/memories.
	Namespace string `koanf:"namespace"`
	RepoPath  string `koanf:"repo_path"`

	// Watch makes serve re-sync when the notes ref moves, e.g. after a fetch.
	Watch         bool     `koanf:"watch"`
	WatchDebounce Duration `koanf:"watch_debounce"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

var knownProviders = map[string]bool{"fastembed": true, "tei": true, "hash": true}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Namespaces) == 0 {
		return errors.New("at least one namespace is required")
	}
	seen := make(map[string]bool, len(c.Namespaces))
	for _, ns := range c.Namespaces {
		if strings.TrimSpace(ns) == "" {
			return errors.New("namespace names cannot be empty")
		}
		if seen[ns] {
			return fmt.Errorf("duplicate namespace %q", ns)
		}
		seen[ns] = true
	}

	if !vectorstore.IsSupportedBackend(c.Backend) {
		return fmt.Errorf("%w: %q (supported: sqlite, qdrant)", vectorstore.ErrUnsupportedBackend, c.Backend)
	}
	if !knownProviders[c.Embeddings.Provider] {
		return fmt.Errorf("unknown embeddings provider %q (supported: fastembed, tei, hash)", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension < 0 {
		return fmt.Errorf("embeddings dimension cannot be negative: %d", c.Embeddings.Dimension)
	}
	if c.Embeddings.RateLimit < 0 {
		return fmt.Errorf("embeddings rate_limit cannot be negative: %g", c.Embeddings.RateLimit)
	}
	if c.Backend == vectorstore.BackendQdrant && (c.Qdrant.Port < 1 || c.Qdrant.Port > 65535) {
		return fmt.Errorf("invalid qdrant port: %d (must be 1-65535)", c.Qdrant.Port)
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d (must be 1-65535)", c.HTTP.Port)
	}
	if !strings.HasPrefix(c.Ledger.Namespace, "refs/notes/") {
		return fmt.Errorf("ledger namespace must be under refs/notes/, got %q", c.Ledger.Namespace)
	}
	if c.Ledger.Watch && c.Ledger.WatchDebounce.Duration() <= 0 {
		return errors.New("ledger watch_debounce must be positive when watch is enabled")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// ResolvePaths rewrites relative filesystem paths against root.
func (c *Config) ResolvePaths(root string) {
	c.Root = root
	for _, p := range []*string{
		&c.Embeddings.CacheDir,
		&c.SQLite.Path,
		&c.SQLite.VectorPath,
		&c.Ledger.RepoPath,
		&c.Secrets.AllowListFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}
}

// Addr returns the HTTP listen address.
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
