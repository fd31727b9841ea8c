package logger

import (
	"log/slog"
	"strings"
)

// MaskUsername masks a login identifier for logging. Email-shaped values
// keep the first character and the TLD (e.g. "a***@****.com"); plain
// usernames keep the first character only.
func MaskUsername(username string) string {
	if username == "" {
		return ""
	}

	at := strings.IndexByte(username, '@')
	if at <= 0 || at == len(username)-1 {
		return maskWord(username)
	}

	local := maskWord(username[:at])
	domain := username[at+1:]

	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		// Mask all but the TLD
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	} else {
		domain = strings.Repeat("*", len(domain))
	}

	return local + "@" + domain
}

func maskWord(s string) string {
	if len(s) <= 1 {
		return s
	}
	return string(s[0]) + strings.Repeat("*", len(s)-1)
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := map[string]bool{
		"password": true,
		"token":    true,
		"secret":   true,
		"code":     true,
		"username": true,
		"auth":     true,
		"csrf":     true,
		"recovery": true,
	}

	query := strings.ToLower(rawQuery)
	for param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
