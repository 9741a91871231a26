package logutil

import (
	"net/url"
	"regexp"
	"strings"
)

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch {
	case normalized == "authorization":
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "password"):
		return true
	case strings.Contains(normalized, "apikey"):
		return true
	case strings.Contains(normalized, "cookie"):
		return true
	case strings.Contains(normalized, "assertion"):
		return true
	default:
		return false
	}
}

// RedactURL replaces the values of sensitive query parameters with [REDACTED].
// Unparseable input is passed through RedactText instead.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return RedactText(raw)
	}
	q := u.Query()
	if len(q) == 0 {
		return raw
	}
	changed := false
	for key := range q {
		if IsSensitiveLogField(key) {
			q.Set(key, "[REDACTED]")
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

var tokenParamPattern = regexp.MustCompile(`(?i)((?:token|assertion|password)=)[^&\s"'<>]+`)

// RedactText redacts token-like query values embedded in free text such as
// email bodies.
func RedactText(text string) string {
	return tokenParamPattern.ReplaceAllString(text, "${1}[REDACTED]")
}

// TruncateForLog returns a single-line truncated preview for unstructured values.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || len(normalized) <= maxChars {
		return normalized
	}
	return normalized[:maxChars] + "... [truncated]"
}
