// Package speech converts between voice messages and text.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"aris/internal/model"

	"github.com/sashabaranov/go-openai"
)

// Transcriber turns audio into text. ok is false when no speech was recognized.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (text string, ok bool, err error)
}

// Synthesizer renders text to an audio file and returns its path. The caller
// owns the file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Config selects the speech models.
type Config struct {
	BaseURL  string
	APIKey   string
	STTModel string
	TTSModel string
	TTSVoice string
	// TempDir receives synthesized files; empty means os.TempDir().
	TempDir string
}

func newClient(cfg Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

type OpenAITranscriber struct {
	client *openai.Client
	model  string
}

func NewOpenAITranscriber(cfg Config) *OpenAITranscriber {
	if cfg.STTModel == "" {
		cfg.STTModel = openai.Whisper1
	}
	return &OpenAITranscriber{client: newClient(cfg), model: cfg.STTModel}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, bool, error) {
	if len(audio) == 0 {
		return "", false, nil
	}
	if format == "" {
		format = "ogg"
	}
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: "voice." + format,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", false, Classify("transcribe", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}

type OpenAISynthesizer struct {
	client *openai.Client
	model  string
	voice  string
	dir    string
}

func NewOpenAISynthesizer(cfg Config) *OpenAISynthesizer {
	if cfg.TTSModel == "" {
		cfg.TTSModel = string(openai.TTSModel1)
	}
	if cfg.TTSVoice == "" {
		cfg.TTSVoice = string(openai.VoiceNova)
	}
	return &OpenAISynthesizer{client: newClient(cfg), model: cfg.TTSModel, voice: cfg.TTSVoice, dir: cfg.TempDir}
}

// Synthesize writes an ogg/opus file, the format Telegram plays as a voice note.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatOpus,
	})
	if err != nil {
		return "", Classify("synthesize", err)
	}
	defer resp.Close()

	f, err := os.CreateTemp(s.dir, "aris-tts-*.ogg")
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	if _, err := io.Copy(f, resp); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", Classify("synthesize", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Classify wraps retryable failures in *model.TransientNetworkError.
// Cancellation and client errors are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if retryableStatus(apiErr.HTTPStatusCode) {
			return &model.TransientNetworkError{Op: op, Err: err}
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if retryableStatus(reqErr.HTTPStatusCode) {
			return &model.TransientNetworkError{Op: op, Err: err}
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return &model.TransientNetworkError{Op: op, Err: err}
	}
	return err
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
