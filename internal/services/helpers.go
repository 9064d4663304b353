package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// Identity is the authenticated caller as established by the session, never by request parameters.
type Identity struct {
	UserID string
	Email  string
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func looksLikeEmail(value string) bool {
	return strings.Contains(value, "@")
}

// truncateRunes cuts value to at most limit characters without splitting a multibyte rune.
func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return strings.TrimSpace(string([]rune(value)[:limit]))
}

func stringPtr(value string) *string {
	return &value
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
