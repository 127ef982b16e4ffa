package jira

import (
	"fmt"
	"strings"
	"time"
)

// BaseURL builds the browser-facing base URL from a host and protocol.
// The protocol defaults to https and a trailing slash is removed.
func BaseURL(protocol, host string) string {
	if protocol == "" {
		protocol = "https"
	}
	host = strings.TrimSuffix(strings.TrimSpace(host), "/")
	if strings.Contains(host, "://") {
		return host
	}
	return protocol + "://" + host
}

// BrowseURL returns the canonical link to an issue, e.g. https://jira.example.com/browse/PROJ-1.
func BrowseURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/browse/" + key
}

// ParseTimestamp parses Jira's timestamp format into a time.Time.
// Jira uses ISO 8601 with timezone: 2024-01-15T10:30:00.000+0000 or 2024-01-15T10:30:00.000Z
func ParseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	formats := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05-0700",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %s", ts)
}
