// Package persistence contains helpers shared by store implementations.
package persistence

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/hatchery/internal/domain"
)

// ErrInvalidCursor is returned for tokens that do not decode to a cursor.
var ErrInvalidCursor = errors.New("invalid cursor")

// EncodeCursor serialises the cursor to an opaque, URL-safe token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := fmt.Sprintf("%s|%s", c.StartTime.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token yields nil.
func DecodeCursor(token string) (*domain.Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("%w: malformed token", ErrInvalidCursor)
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	return &domain.Cursor{StartTime: ts, ID: parts[1]}, nil
}

// Before reports whether a record sorts after the cursor in newest-first order.
func Before(startTime time.Time, id string, c *domain.Cursor) bool {
	if c == nil {
		return true
	}
	if startTime.Equal(c.StartTime) {
		return id < c.ID
	}
	return startTime.Before(c.StartTime)
}
