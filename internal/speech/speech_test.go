package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"aris/internal/model"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSynth struct {
	errs  []error
	calls int
	texts []string
}

func (s *scriptedSynth) Synthesize(_ context.Context, text string) (string, error) {
	s.calls++
	s.texts = append(s.texts, text)
	if len(s.errs) >= s.calls && s.errs[s.calls-1] != nil {
		return "", s.errs[s.calls-1]
	}
	return "/tmp/out.ogg", nil
}

func transient() error {
	return &model.TransientNetworkError{Op: "synthesize", Err: errors.New("connection reset")}
}

func newRetrying(inner Synthesizer) (*RetryingSynthesizer, *[]time.Duration) {
	logger := zerolog.New(io.Discard)
	r := NewRetryingSynthesizer(inner, DefaultRetryConfig(), &logger)
	var delays []time.Duration
	r.wait = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return r, &delays
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	inner := &scriptedSynth{errs: []error{transient(), transient()}}
	r, delays := newRetrying(inner)

	path, err := r.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out.ogg", path)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	inner := &scriptedSynth{errs: []error{transient(), transient(), transient(), nil}}
	r, delays := newRetrying(inner)

	_, err := r.Synthesize(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
	assert.Equal(t, 3, inner.calls)
	assert.Len(t, *delays, 2)
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	inner := &scriptedSynth{errs: []error{errors.New("invalid voice")}}
	r, delays := newRetrying(inner)

	_, err := r.Synthesize(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Empty(t, *delays)
}

func TestRetryStopsOnCancel(t *testing.T) {
	inner := &scriptedSynth{errs: []error{transient(), transient()}}
	logger := zerolog.New(io.Discard)
	r := NewRetryingSynthesizer(inner, RetryConfig{Attempts: 3, BaseDelay: time.Hour}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Synthesize(ctx, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryTruncatesText(t *testing.T) {
	inner := &scriptedSynth{}
	r, _ := newRetrying(inner)

	_, err := r.Synthesize(context.Background(), strings.Repeat("я", 1500))
	require.NoError(t, err)
	assert.Len(t, []rune(inner.texts[0]), MaxSynthesisChars)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("op", nil))
	assert.True(t, model.IsTransient(Classify("op", &openai.APIError{HTTPStatusCode: 503})))
	assert.True(t, model.IsTransient(Classify("op", &openai.APIError{HTTPStatusCode: 429})))
	assert.False(t, model.IsTransient(Classify("op", &openai.APIError{HTTPStatusCode: 400})))
	assert.True(t, model.IsTransient(Classify("op", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")})))
	assert.True(t, model.IsTransient(Classify("op", io.ErrUnexpectedEOF)))
	assert.False(t, model.IsTransient(Classify("op", context.Canceled)))
	assert.False(t, model.IsTransient(Classify("op", errors.New("other"))))
}

func TestOpenAISynthesizerWritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		var req openai.CreateSpeechRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "привет", req.Input)
		w.Header().Set("Content-Type", "audio/ogg")
		_, _ = w.Write([]byte("OggS-audio"))
	}))
	defer srv.Close()

	s := NewOpenAISynthesizer(Config{BaseURL: srv.URL + "/v1", TempDir: t.TempDir()})
	path, err := s.Synthesize(context.Background(), "привет")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "OggS-audio", string(data))
}

func TestOpenAITranscriber(t *testing.T) {
	text := "hello bot"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	defer srv.Close()

	tr := NewOpenAITranscriber(Config{BaseURL: srv.URL + "/v1"})
	got, ok, err := tr.Transcribe(context.Background(), []byte("audio"), "ogg")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello bot", got)

	text = "   "
	_, ok, err = tr.Transcribe(context.Background(), []byte("audio"), "ogg")
	require.NoError(t, err)
	assert.False(t, ok, "blank transcript means nothing was recognized")

	_, ok, err = tr.Transcribe(context.Background(), nil, "ogg")
	require.NoError(t, err)
	assert.False(t, ok)
}
