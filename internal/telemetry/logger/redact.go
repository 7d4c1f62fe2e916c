package logger

import (
	"log/slog"
	"strings"
)

// Key names whose values are user addresses. Addresses are masked, not
// removed, so log lines stay correlatable.
var addressKeys = []string{
	"address",
	"email",
}

// Sensitive key patterns that should be redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"credential",
	"auth",
	"bearer",
	"passphrase",
}

const redactedValue = "***REDACTED***"

// redactSensitive masks addresses and redacts secrets in a log attribute.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	if a.Value.Kind() != slog.KindString {
		return a
	}
	strVal := a.Value.String()
	if strVal == "" {
		return a
	}

	switch {
	case IsAddressKey(a.Key):
		return slog.String(a.Key, MaskAddress(strVal))
	case IsSensitiveKey(a.Key):
		return slog.String(a.Key, redactedValue)
	}
	return a
}

// MaskAddress hides most of a user address.
//
//	alice@example.org -> a***e@example.org
//	bob               -> b***
func MaskAddress(addr string) string {
	local, domain, hasDomain := strings.Cut(addr, "@")

	masked := "***"
	switch n := len(local); {
	case n > 2:
		masked = local[:1] + "***" + local[n-1:]
	case n > 0:
		masked = local[:1] + "***"
	}

	if hasDomain {
		return masked + "@" + domain
	}
	return masked
}

// IsAddressKey reports whether key names a user address.
func IsAddressKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, k := range addressKeys {
		if keyLower == k || strings.HasSuffix(keyLower, "_"+k) {
			return true
		}
	}
	return false
}

// IsSensitiveKey checks if a key name suggests secret content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
