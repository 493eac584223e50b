package secrets

import (
	"fmt"
	"regexp"
)

// Config configures the redactor.
type Config struct {
	// Enabled controls whether redaction is active (default: true).
	Enabled bool `koanf:"enabled"`

	// Rules is the ordered rule table. Order matters: rules are applied in
	// sequence and an earlier rule wins overlapping text.
	Rules []Rule `koanf:"rules"`

	// AllowList contains patterns for matches that must be left untouched.
	AllowList []string `koanf:"allow_list"`

	// Gitleaks enables a second pass with the gitleaks default rule set.
	Gitleaks bool `koanf:"gitleaks"`

	// compiled patterns (populated by Validate)
	compiledRules     []*compiledRule
	compiledAllowList []*regexp.Regexp
}

// Rule defines a secret detection rule.
type Rule struct {
	// ID names the rule and appears in the redaction marker.
	ID string `koanf:"id"`

	// Description explains what this rule detects.
	Description string `koanf:"description"`

	// Pattern is the regex pattern to match secrets. It is always compiled
	// case-insensitively.
	Pattern string `koanf:"pattern"`

	// Keywords are optional keywords that must be present for the rule to apply.
	Keywords []string `koanf:"keywords"`
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig returns an enabled configuration with the default rule table.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Rules:     DefaultRules(),
		AllowList: []string{},
	}
}

// Validate validates and compiles the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	c.compiledRules = make([]*compiledRule, 0, len(c.Rules))
	seen := make(map[string]struct{}, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("rule %s: duplicate ID", rule.ID)
		}
		seen[rule.ID] = struct{}{}

		pattern, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}

		compiled := &compiledRule{
			Rule:     rule,
			pattern:  pattern,
			keywords: make([]*regexp.Regexp, 0, len(rule.Keywords)),
		}
		for _, kw := range rule.Keywords {
			compiled.keywords = append(compiled.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}

		c.compiledRules = append(c.compiledRules, compiled)
	}

	c.compiledAllowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, pattern := range c.AllowList {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, compiled)
	}

	return nil
}
