// Package cache keeps generated responses keyed by normalized prompt.
package cache

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultTTL       = time.Hour
	DefaultHighWater = 1000
)

// Normalize trims whitespace and case-folds a prompt.
func Normalize(prompt string) string {
	return strings.ToLower(strings.TrimSpace(prompt))
}

// Entry is never modified after creation; a store replaces the pointer.
type Entry struct {
	Key       string    `json:"key"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

func (e *Entry) validAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) < ttl
}

// ResponseCache is implemented by MemoryCache, RedisCache and Tiered.
type ResponseCache interface {
	Lookup(ctx context.Context, prompt string) (string, bool)
	Store(ctx context.Context, prompt, response string)
	Sweep(ctx context.Context) int
	Len() int
}
