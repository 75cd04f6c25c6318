package speech

import (
	"context"
	"fmt"
	"time"

	"aris/internal/metrics"
	"aris/internal/model"

	"github.com/rs/zerolog"
)

// MaxSynthesisChars bounds text sent to the synthesizer.
const MaxSynthesisChars = 1000

// RetryConfig controls synthesis retries. The n-th retry waits BaseDelay*n.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, BaseDelay: time.Second}
}

// RetryingSynthesizer retries transient failures with linear backoff.
type RetryingSynthesizer struct {
	inner  Synthesizer
	cfg    RetryConfig
	logger *zerolog.Logger
	wait   func(ctx context.Context, d time.Duration) error
}

func NewRetryingSynthesizer(inner Synthesizer, cfg RetryConfig, logger *zerolog.Logger) *RetryingSynthesizer {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	return &RetryingSynthesizer{inner: inner, cfg: cfg, logger: logger, wait: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *RetryingSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	text = truncate(text, MaxSynthesisChars)

	var lastErr error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		path, err := r.inner.Synthesize(ctx, text)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if !model.IsTransient(err) || attempt == r.cfg.Attempts {
			break
		}

		delay := r.cfg.BaseDelay * time.Duration(attempt)
		r.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("speech synthesis failed, retrying")
		metrics.IncSpeechRetry()
		if err := r.wait(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("speech synthesis: %w", lastErr)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
