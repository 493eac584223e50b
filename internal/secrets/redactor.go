package secrets

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Redactor scrubs secrets from text.
type Redactor interface {
	// Filter returns text with every detected secret replaced by a marker.
	Filter(text string) string

	// Redact is Filter plus the findings that produced the markers.
	Redact(text string) *Result

	// IsEnabled returns whether redaction is enabled.
	IsEnabled() bool
}

// Marker returns the replacement written in place of a match of ruleID.
func Marker(ruleID string) string {
	return fmt.Sprintf("[REDACTED:%s]", ruleID)
}

type redactor struct {
	config *Config

	// gitleaks detectors are not documented as goroutine safe
	mu       sync.Mutex
	detector *detect.Detector
}

// New creates a Redactor with the given configuration.
// If config is nil, DefaultConfig() is used.
func New(cfg *Config) (Redactor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &redactor{config: cfg}
	if cfg.Enabled && cfg.Gitleaks {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("loading gitleaks rules: %w", err)
		}
		r.detector = d
	}
	return r, nil
}

// MustNew creates a Redactor, panicking on error.
func MustNew(cfg *Config) Redactor {
	r, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *redactor) Filter(text string) string {
	return r.Redact(text).Redacted
}

func (r *redactor) Redact(text string) *Result {
	result := &Result{
		Redacted: text,
		Findings: make([]Finding, 0),
		ByRule:   make(map[string]int),
	}
	if !r.config.Enabled || text == "" {
		return result
	}

	current := text
	for _, rule := range r.config.compiledRules {
		if !rule.applies(current) {
			continue
		}
		current = r.applyRule(rule, current, result)
	}

	if r.detector != nil {
		current = r.applyGitleaks(current, result)
	}

	result.Redacted = current
	return result
}

func (r *redactor) IsEnabled() bool {
	return r.config.Enabled
}

func (c *compiledRule) applies(text string) bool {
	if len(c.keywords) == 0 {
		return true
	}
	for _, kw := range c.keywords {
		if kw.MatchString(text) {
			return true
		}
	}
	return false
}

// applyRule replaces every non-allowed match of rule in text.
func (r *redactor) applyRule(rule *compiledRule, text string, result *Result) string {
	matches := rule.pattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	marker := Marker(rule.ID)
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		if r.isAllowed(text[m[0]:m[1]]) {
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(marker)
		last = m[1]

		result.Findings = append(result.Findings, Finding{
			RuleID:     rule.ID,
			StartIndex: m[0],
			EndIndex:   m[1],
			Line:       strings.Count(text[:m[0]], "\n") + 1,
		})
		result.ByRule[rule.ID]++
	}
	b.WriteString(text[last:])
	return b.String()
}

func (r *redactor) applyGitleaks(text string, result *Result) string {
	r.mu.Lock()
	findings := r.detector.DetectString(text)
	r.mu.Unlock()

	for _, f := range findings {
		if f.Secret == "" || r.isAllowed(f.Secret) {
			continue
		}
		text = replaceSecret(text, f.Secret, f.RuleID, result)
	}
	return text
}

// replaceSecret masks every occurrence of secret in text and records one
// finding per marker written. Offsets refer to text as passed in.
// Repeated detections of an already masked secret find nothing.
func replaceSecret(text, secret, ruleID string, result *Result) string {
	marker := Marker(ruleID)
	var b strings.Builder
	last := 0
	for {
		i := strings.Index(text[last:], secret)
		if i < 0 {
			break
		}
		start := last + i
		end := start + len(secret)
		b.WriteString(text[last:start])
		b.WriteString(marker)
		result.Findings = append(result.Findings, Finding{
			RuleID:     ruleID,
			StartIndex: start,
			EndIndex:   end,
			Line:       strings.Count(text[:start], "\n") + 1,
		})
		result.ByRule[ruleID]++
		last = end
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

func (r *redactor) isAllowed(match string) bool {
	for _, pattern := range r.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

var _ Redactor = (*redactor)(nil)
