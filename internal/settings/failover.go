package settings

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"aris/internal/model"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStorage writes to primary and switches to fallback while primary is
// failing. Recovery of primary is probed at most once per recoveryInterval.
type FailoverStorage struct {
	primary  Storage
	fallback Storage
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

// NewFailoverStorage wraps primary with fallback.
func NewFailoverStorage(primary, fallback Storage, logger *zerolog.Logger) *FailoverStorage {
	return &FailoverStorage{primary: primary, fallback: fallback, logger: logger}
}

func (f *FailoverStorage) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) >= recoveryInterval {
		f.lastCheck = time.Now()
		return true
	}
	return false
}

func (f *FailoverStorage) markDown(err error) {
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Msg("primary settings storage down, using fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *FailoverStorage) markUp() {
	if f.isDown.Swap(false) {
		f.logger.Info().Msg("primary settings storage recovered")
	}
}

func (f *FailoverStorage) Load(ctx context.Context, userID int64) ([]byte, error) {
	if f.usePrimary() {
		data, err := f.primary.Load(ctx, userID)
		if err == nil || errors.Is(err, model.ErrNotFound) {
			f.markUp()
			if err != nil {
				// records written during an outage only exist in fallback
				if fb, fbErr := f.fallback.Load(ctx, userID); fbErr == nil {
					return fb, nil
				}
			}
			return data, err
		}
		f.markDown(err)
	}
	return f.fallback.Load(ctx, userID)
}

func (f *FailoverStorage) Save(ctx context.Context, userID int64, data []byte) error {
	if f.usePrimary() {
		err := f.primary.Save(ctx, userID, data)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown(err)
	}
	return f.fallback.Save(ctx, userID, data)
}

func (f *FailoverStorage) ListUserIDs(ctx context.Context) ([]int64, error) {
	fb, fbErr := f.fallback.ListUserIDs(ctx)
	if !f.usePrimary() {
		return fb, fbErr
	}
	ids, err := f.primary.ListUserIDs(ctx)
	if err != nil {
		f.markDown(err)
		return fb, fbErr
	}
	f.markUp()
	return append(ids, fb...), nil
}
