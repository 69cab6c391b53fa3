// Package redaction masks credentials before they reach log sinks.
// It knows the shapes of Telegram bot tokens, API hashes and generic
// key=value secrets, and masks values of sensitive field names.
package redaction

import (
	"regexp"
	"strings"
	"sync"
)

// Config holds redaction configuration.
type Config struct {
	// Enabled controls whether redaction is active.
	Enabled bool `json:"enabled"`

	// CustomPatterns allows additional regex patterns to redact.
	CustomPatterns []string `json:"custom_patterns,omitempty"`

	// Replacement is the string used to replace sensitive data.
	Replacement string `json:"replacement"`
}

// DefaultConfig returns the default redaction configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Replacement: "[REDACTED]",
	}
}

var (
	// 123456789:AAE... as issued by BotFather.
	botTokenPattern = regexp.MustCompile(`\b\d{6,12}:[A-Za-z0-9_-]{30,}\b`)
	// Telegram api_hash values are 32 hex characters.
	apiHashPattern = regexp.MustCompile(`(?i)(api[_-]?hash|secret|token|password)\s*[=:]\s*['"]?([A-Za-z0-9_\-:.]{8,})['"]?`)
	jsonSecret     = regexp.MustCompile(`"(?:api_hash|secret|token|password)"\s*:\s*"([^"]+)"`)

	sensitiveKeys = []string{
		"api_hash", "secret", "token", "password", "credential",
	}
)

// Redactor provides sensitive data redaction.
type Redactor struct {
	mu     sync.RWMutex
	config Config
	custom []*regexp.Regexp
}

// NewRedactor creates a Redactor. Invalid custom patterns are skipped.
func NewRedactor(config Config) *Redactor {
	if config.Replacement == "" {
		config.Replacement = "[REDACTED]"
	}
	r := &Redactor{config: config}
	for _, pattern := range config.CustomPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			r.custom = append(r.custom, re)
		}
	}
	return r
}

// Redact masks every known secret shape in input.
func (r *Redactor) Redact(input string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.config.Enabled || input == "" {
		return input
	}

	result := botTokenPattern.ReplaceAllString(input, r.config.Replacement)
	result = replaceGroup(jsonSecret, result, r.config.Replacement)
	result = replaceGroup(apiHashPattern, result, r.config.Replacement)
	for _, re := range r.custom {
		result = re.ReplaceAllString(result, r.config.Replacement)
	}
	return result
}

// replaceGroup replaces only the last capture group of every match so the
// key stays readable in the log line.
func replaceGroup(re *regexp.Regexp, input, replacement string) string {
	return re.ReplaceAllStringFunc(input, func(match string) string {
		sub := re.FindStringSubmatch(match)
		if len(sub) < 2 || sub[len(sub)-1] == "" {
			return replacement
		}
		secret := sub[len(sub)-1]
		idx := strings.LastIndex(match, secret)
		return match[:idx] + replacement + match[idx+len(secret):]
	})
}

// RedactFields redacts sensitive values in a log field map.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	r.mu.RLock()
	enabled := r.config.Enabled
	replacement := r.config.Replacement
	r.mu.RUnlock()

	if !enabled || fields == nil {
		return fields
	}

	result := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitiveKey(k) {
			result[k] = replacement
			continue
		}
		switch val := v.(type) {
		case string:
			result[k] = r.Redact(val)
		case map[string]any:
			result[k] = r.RedactFields(val)
		default:
			result[k] = v
		}
	}
	return result
}

// SetEnabled toggles redaction at runtime.
func (r *Redactor) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Enabled = enabled
}

// Enabled reports whether redaction is active.
func (r *Redactor) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Enabled
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sk := range sensitiveKeys {
		if strings.Contains(lower, sk) {
			return true
		}
	}
	return false
}
