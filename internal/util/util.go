package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ISO formats t as RFC 3339 UTC, or "" for the zero time.
func ISO(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ParseFlag reads checkbox-style values, including the Russian "да".
func ParseFlag(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "да", "yes", "true", "1", "y", "on":
		return true
	default:
		return false
	}
}

func HMACSHA256Hex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidHMAC compares token with the expected signature in constant time.
func ValidHMAC(secret, msg, token string) bool {
	return hmac.Equal([]byte(HMACSHA256Hex(secret, msg)), []byte(token))
}
