package secrets

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// ErrInvalidAllowList indicates an allow-list file that cannot be used.
var ErrInvalidAllowList = errors.New("invalid allow-list file")

// LoadAllowList returns the content regexes of a gitleaks-style TOML file.
// Both the single [allowlist] table and [[allowlists]] arrays are read. A
// missing file yields no patterns and no error.
//
//	[allowlist]
//	regexes = ['''AKIA[0-9A-Z]{12}EXAMPLE''']
func LoadAllowList(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	var file struct {
		AllowList struct {
			Regexes []string `toml:"regexes"`
		} `toml:"allowlist"`
		AllowLists []struct {
			Regexes []string `toml:"regexes"`
		} `toml:"allowlists"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAllowList, path, err)
	}

	patterns := append([]string(nil), file.AllowList.Regexes...)
	for _, al := range file.AllowLists {
		patterns = append(patterns, al.Regexes...)
	}
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: %s: pattern %q: %v", ErrInvalidAllowList, path, p, err)
		}
	}
	return patterns, nil
}
