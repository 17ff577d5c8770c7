package logging

import (
	"regexp"
)

const (
	// MaxHQLLogLength is the maximum length of generated HQL to log.
	MaxHQLLogLength = 200
	// RedactedText is the replacement text for sensitive data.
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings.
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match connection string credentials (user:pass@host format).
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Pattern to match goroutine stack frames leaking into messages.
	stackFramePattern = regexp.MustCompile(`(?m)^\s+(?:goroutine \d+|[\w./-]+\.go:\d+).*$`)
)

// SanitizeError strips sensitive data from error messages before logging or
// surfacing them. Use for any error originating from storage operations.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	return sanitized
}

// ScrubInternal removes stack frames and truncates a message so that a
// server_error envelope never leaks internal identifiers to the caller.
func ScrubInternal(message string) string {
	scrubbed := stackFramePattern.ReplaceAllString(message, "")
	scrubbed = passwordPattern.ReplaceAllString(scrubbed, "${1}="+RedactedText)
	scrubbed = connStringPattern.ReplaceAllString(scrubbed, "://"+RedactedText+"@"+RedactedText)
	return TruncateString(scrubbed, MaxHQLLogLength)
}

// SanitizeHQL truncates generated HQL for logging. The text itself carries no
// secrets; truncation just keeps log lines bounded.
func SanitizeHQL(hql string) string {
	return TruncateString(hql, MaxHQLLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
