package config

import (
	"context"
	"os"
	"time"
)

// WatchPersonas reloads the personas file on change and calls onUpdate with
// the latest version. It performs an initial load before entering the watch
// loop; a file that fails to parse later is skipped until it is fixed.
func WatchPersonas(ctx context.Context, path string, interval time.Duration, onUpdate func(*PersonasConfig)) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cfg, err := LoadPersonas(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cfg, err := LoadPersonas(path)
				if err != nil {
					continue
				}
				lastMod = info.ModTime()
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}
