package logging

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"mercator-hq/relay/pkg/config"
)

// Redactor removes secrets from log attributes: session cookies, bearer
// and report tokens, ECDH key material and anything matching a configured
// pattern.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternBearerToken = "bearer_token"
	PatternJWS         = "jws"
	PatternPassword    = "password"
	PatternEmail       = "email"
	PatternReportToken = "report_token"
)

// reportTokenPath matches the token segment of the path-token report route.
var reportTokenPath = regexp.MustCompile(`(/api/unique-devices-report/)[^/?#\s]+`)

// RedactPath masks credentials carried in a request path, such as the
// report token of /api/unique-devices-report/{token}. Access records and
// request logs store paths through it.
func RedactPath(path string) string {
	return reportTokenPath.ReplaceAllString(path, "${1}***")
}

var defaultPatterns = []struct {
	name        string
	regex       string
	replacement string
}{
	{PatternBearerToken, `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
	// Compact JWS, which is what session cookies look like.
	{PatternJWS, `eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`, "***.jws"},
	{PatternPassword, `(password|passwd|pwd|secret)[:=]\s*[^\s&]+`, "$1=***"},
	{PatternEmail, `[a-zA-Z0-9._%+-]+@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`, "***@$1"},
	{PatternReportToken, reportTokenPath.String(), "${1}***"},
}

// sensitiveKeys are attribute keys whose values are always masked.
var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token", "authorization",
	"cookie", "private_key", "shared_secret",
	"encoder_public_key", "decoder_public_key",
}

// NewRedactor creates a Redactor with the built-in and custom patterns.
func NewRedactor(custom []config.RedactPattern) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		})
	}

	for _, p := range custom {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p.Name, err)
		}
		replacement := p.Replacement
		if replacement == "" {
			replacement = "***"
		}
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: replacement,
		})
	}

	return r, nil
}

// RedactString applies every pattern to value.
func (r *Redactor) RedactString(value string) string {
	if r == nil || value == "" {
		return value
	}
	for _, pattern := range r.patterns {
		value = pattern.regex.ReplaceAllString(value, pattern.replacement)
	}
	return value
}

// RedactAttr masks sensitive keys and applies the patterns to string
// values, descending into groups.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if r == nil {
		return a
	}

	value := a.Value.Resolve()
	switch {
	case value.Kind() == slog.KindGroup:
		group := value.Group()
		redacted := make([]slog.Attr, len(group))
		for i, ga := range group {
			redacted[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	case isSensitiveKey(a.Key):
		return slog.String(a.Key, maskValue(value))
	case value.Kind() == slog.KindString:
		return slog.String(a.Key, r.RedactString(value.String()))
	case value.Kind() == slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: value}
}

func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// maskValue keeps a four character hint of long string values.
func maskValue(value slog.Value) string {
	if value.Kind() != slog.KindString {
		return "***"
	}
	s := value.String()
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "***"
	}
}
