package logging

import (
	"regexp"
	"strings"
)

// Field names whose values never reach the logs.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"auth",
	"credential",
	"cookie",
	"session",
}

var secretPatterns = []*regexp.Regexp{
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]+`),

	// JWTs appearing bare, e.g. in error text
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{5,}\.[a-zA-Z0-9_-]{5,}\.[a-zA-Z0-9_-]*`),

	// key=value / key: value pairs in query strings and JSON fragments
	regexp.MustCompile(`(?i)("?(?:token|password|secret)"?\s*[=:]\s*"?)[^"&\s,}]+`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces tokens and credentials in a string.
func Redact(s string) string {
	result := secretPatterns[0].ReplaceAllString(s, RedactedValue)
	result = secretPatterns[1].ReplaceAllString(result, RedactedValue)
	result = secretPatterns[2].ReplaceAllString(result, "${1}"+RedactedValue)
	return result
}

// RedactMap redacts sensitive fields in a decoded JSON object, e.g. a login
// payload about to be logged at debug level.
func RedactMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch {
		case IsSensitiveField(k):
			result[k] = RedactedValue
		default:
			switch val := v.(type) {
			case map[string]interface{}:
				result[k] = RedactMap(val)
			case string:
				result[k] = Redact(val)
			default:
				result[k] = v
			}
		}
	}
	return result
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
