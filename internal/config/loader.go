package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override the file.
const EnvPrefix = "GITMEM_"

const maxConfigFileSize = 1024 * 1024 // 1MB

//go:embed default.yaml
var defaultYAML []byte

// Load reads configuration with this precedence, highest first:
//
//  1. GITMEM_ environment variables (GITMEM_SQLITE_VECTOR_PATH -> sqlite.vector_path)
//  2. the YAML file at path, when it exists
//  3. built-in defaults
//
// Relative paths are left as written; see LoadWorkspace.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaultYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		content, err := readConfigFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadWorkspace loads root/.memory/config.yaml and resolves relative paths
// against root.
func LoadWorkspace(root string) (*Config, error) {
	cfg, err := Load(filepath.Join(root, Dir, File))
	if err != nil {
		return nil, err
	}
	cfg.ResolvePaths(root)
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	k := koanf.New(".")
	var cfg Config
	if err := k.Load(rawbytes.Provider(defaultYAML), yaml.Parser()); err != nil {
		panic(fmt.Sprintf("config: invalid built-in defaults: %v", err))
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		panic(fmt.Sprintf("config: invalid built-in defaults: %v", err))
	}
	return &cfg
}

// envKey maps GITMEM_SECTION_FIELD_NAME to section.field_name. Top-level
// keys have no section: GITMEM_BACKEND -> backend.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if key == "" {
		return ""
	}
	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 1 || !sections[parts[0]] {
		return key
	}
	return parts[0] + "." + parts[1]
}

var sections = map[string]bool{
	"embeddings": true,
	"secrets":    true,
	"sqlite":     true,
	"qdrant":     true,
	"ledger":     true,
	"logging":    true,
	"telemetry":  true,
	"http":       true,
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
