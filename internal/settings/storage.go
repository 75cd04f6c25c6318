// Package settings keeps per-user settings in memory and persists every change.
package settings

import (
	"context"
)

// Storage is the durable side of the store: one opaque record per user id.
type Storage interface {
	// Load returns the stored record, or model.ErrNotFound when none exists.
	Load(ctx context.Context, userID int64) ([]byte, error)

	// Save replaces the stored record. A crash during Save must leave either
	// the old or the new record, never a mixture.
	Save(ctx context.Context, userID int64, data []byte) error

	// ListUserIDs returns every user id with a stored record.
	ListUserIDs(ctx context.Context) ([]int64, error)
}
