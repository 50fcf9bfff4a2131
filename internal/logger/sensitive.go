// sensitive.go
package logger

import (
	"regexp"
	"strings"
)

// SensitiveKeywords are keywords that indicate fields may contain sensitive data
var SensitiveKeywords = []string{
	"password", "passwd", "secret", "credential", "token", "cookie", "session", "csrf", "dsn",
}

// sensitiveValuePatterns catch credentials embedded in otherwise harmless values,
// such as a MySQL DSN inside an error message.
var sensitiveValuePatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)((passw(or)?d|secret|token)[\s:=]+)([^;,\s"]{3,})`), "${1}[REDACTED]"},
	{regexp.MustCompile(`(?i)((session|csrf)=)([^;,\s]{5,})`), "${1}[REDACTED]"},
	{regexp.MustCompile(`([A-Za-z0-9_]+:)([^@/\s]+)(@tcp\()`), "${1}[REDACTED]${3}"},
}

const redacted = "[REDACTED]"

// RedactSensitiveValue returns value with credentials removed. The whole
// value is replaced when the key itself names a secret.
func RedactSensitiveValue(key, value string) string {
	if value == "" {
		return value
	}
	lower := strings.ToLower(key)
	for _, kw := range SensitiveKeywords {
		if strings.Contains(lower, kw) {
			return redacted
		}
	}
	return RedactSensitiveData(value)
}

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	for _, p := range sensitiveValuePatterns {
		input = p.re.ReplaceAllString(input, p.repl)
	}
	return input
}
