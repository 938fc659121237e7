package security

import (
	"regexp"
	"strings"
)

// sensitivePatterns contains regex patterns for secrets that may end up in
// log lines or error messages.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|client[_-]?secret|refresh[_-]?token|access[_-]?token|auth[_-]?token|bearer|password|token)[=:\s]+["']?([^\s"'&]+)["']?`),
	// OpenAI keys
	regexp.MustCompile(`(sk-[A-Za-z0-9]{20,})`),
	// Google API keys
	regexp.MustCompile(`(AIza[0-9A-Za-z_-]{20,})`),
	// Google access tokens
	regexp.MustCompile(`(ya29\.[0-9A-Za-z_.-]{20,})`),
	// Telegram bot tokens in URLs
	regexp.MustCompile(`bot([0-9]{5,}:[A-Za-z0-9_-]{20,})`),
}

// MaskSensitive masks secrets in a free-form string.
func MaskSensitive(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			secret := sub[len(sub)-1]
			return strings.Replace(match, secret, MaskCredential(secret), 1)
		})
	}
	return result
}

// MaskCredential masks a credential value for logging.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
