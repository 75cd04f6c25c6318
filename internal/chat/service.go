// Package chat turns inbound messages into replies.
package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"aris/internal/cache"
	"aris/internal/llm"
	"aris/internal/metrics"
	"aris/internal/model"
	"aris/internal/speech"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	personaBase = "base"
	personaAris = "aris"
)

// User-visible fallbacks.
const (
	msgGenerationFailed  = "😅 Не получилось придумать ответ. Попробуй ещё раз чуть позже."
	msgSpeechUnknown     = "😕 Извини, я не смог разобрать, что ты сказал. Можешь повторить?"
	msgSpeechFailed      = "😔 Произошла ошибка при распознавании речи. Попробуй позже."
	msgPhotoUnknown      = "😔 К сожалению, я не смог определить, что на изображении."
	msgHistoryCleared    = "🧹 История диалога очищена."
	msgModelReloaded     = "🔄 Модель перезагружена."
	msgVoiceNotAvailable = "🎙 Голосовые сообщения сейчас не поддерживаются."
	msgSynthesisFailed   = "🔇 Не удалось озвучить текст."
)

// ErrEmptyMessage is returned for blank prompts.
var ErrEmptyMessage = errors.New("empty message")

// SettingsStore is the subset of the settings store the service needs.
type SettingsStore interface {
	Get(ctx context.Context, userID int64) *model.UserSettings
	AppendHistory(ctx context.Context, userID int64, msgs ...model.HistoryMessage) error
	ClearHistory(ctx context.Context, userID int64) error
}

// Personas holds the system prompts of both assistant personalities.
type Personas struct {
	Base string
	Aris string
}

// Deps are the collaborators of a Service. Transcriber, Synthesizer and
// Facts may be nil.
type Deps struct {
	Settings    SettingsStore
	Cache       cache.ResponseCache
	Generator   llm.Generator
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
	Facts       FactSource
}

// Service is created once at startup and shared by every transport.
type Service struct {
	settings SettingsStore
	cache    cache.ResponseCache
	gen      llm.Generator
	stt      speech.Transcriber
	tts      speech.Synthesizer
	facts    FactSource

	personas atomic.Pointer[Personas]
	params   llm.Params
	group    singleflight.Group
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(deps Deps, personas Personas, params llm.Params, logger zerolog.Logger) *Service {
	s := &Service{
		settings: deps.Settings,
		cache:    deps.Cache,
		gen:      deps.Generator,
		stt:      deps.Transcriber,
		tts:      deps.Synthesizer,
		facts:    deps.Facts,
		params:   params,
		logger:   logger.With().Str("component", "chat").Logger(),
		now:      time.Now,
	}
	s.SetPersonas(personas)
	return s
}

// SetPersonas replaces the system prompts used by later generations.
func (s *Service) SetPersonas(p Personas) {
	s.personas.Store(&p)
}

// Handle dispatches one inbound message. Generation and speech failures are
// turned into fallback replies; an error means the message itself was unusable.
func (s *Service) Handle(ctx context.Context, in Inbound) (Reply, error) {
	switch m := in.(type) {
	case TextMessage:
		return s.handleText(ctx, m.UserID, m.Text, false)
	case VoiceMessage:
		return s.handleVoice(ctx, m)
	case PhotoMessage:
		return s.handlePhoto(ctx, m)
	case ClearHistory:
		if err := s.settings.ClearHistory(ctx, m.UserID); err != nil {
			return Reply{}, err
		}
		return Reply{Text: msgHistoryCleared}, nil
	case SpeakText:
		text := strings.TrimSpace(m.Text)
		if text == "" {
			return Reply{}, ErrEmptyMessage
		}
		if path := s.synthesize(ctx, text); path != "" {
			return Reply{VoicePath: path}, nil
		}
		return Reply{Text: msgSynthesisFailed}, nil
	case ReloadModel:
		removed := s.cache.Sweep(ctx)
		s.logger.Info().Int("swept", removed).Msg("model reload requested")
		return Reply{Text: msgModelReloaded}, nil
	default:
		return Reply{}, fmt.Errorf("unsupported inbound message %T", in)
	}
}

func (s *Service) handleText(ctx context.Context, userID int64, text string, spoken bool) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}
	logger := s.log(ctx).With().Int64("user_id", userID).Logger()
	st := s.settings.Get(ctx, userID)

	resp, cached, err := s.respond(ctx, st, text)
	if err != nil {
		logger.Error().Err(err).Msg("generation failed")
		return Reply{Text: msgGenerationFailed}, nil
	}
	reply := Reply{Text: resp, Cached: cached}

	at := s.now()
	if err := s.settings.AppendHistory(ctx, userID,
		model.HistoryMessage{Role: model.RoleUser, Content: text, At: at},
		model.HistoryMessage{Role: model.RoleAssistant, Content: resp, At: at},
	); err != nil {
		logger.Warn().Err(err).Msg("history not recorded")
	}

	if st.ThoughtsEnabled {
		reply.Thought = s.thought(ctx, st, text)
	}
	if st.TTSEnabled || (spoken && st.VoiceEnabled) {
		reply.VoicePath = s.synthesize(ctx, resp)
	}
	return reply, nil
}

func (s *Service) handleVoice(ctx context.Context, m VoiceMessage) (Reply, error) {
	if s.stt == nil {
		return Reply{Text: msgVoiceNotAvailable}, nil
	}
	text, ok, err := s.stt.Transcribe(ctx, m.Audio, m.Format)
	if err != nil {
		s.log(ctx).Error().Err(err).Int64("user_id", m.UserID).Msg("speech recognition failed")
		return Reply{Text: msgSpeechFailed}, nil
	}
	if !ok {
		return Reply{Text: msgSpeechUnknown}, nil
	}
	reply, err := s.handleText(ctx, m.UserID, text, true)
	reply.Transcript = text
	return reply, err
}

func (s *Service) handlePhoto(ctx context.Context, m PhotoMessage) (Reply, error) {
	subject := strings.TrimSpace(strings.Join(m.Labels, ", "))
	if subject == "" {
		subject = strings.TrimSpace(m.Caption)
	}
	if subject == "" {
		return Reply{Text: msgPhotoUnknown}, nil
	}
	prompt := fmt.Sprintf("На изображении %s. Опиши подробнее, что это такое, и расскажи об этом интересные факты.", subject)
	return s.handleText(ctx, m.UserID, prompt, false)
}

// Respond answers a prompt for userID through the cache. It is used by the
// HTTP API; generation failures are returned.
func (s *Service) Respond(ctx context.Context, userID int64, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyMessage
	}
	resp, _, err := s.respond(ctx, s.settings.Get(ctx, userID), prompt)
	return resp, err
}

// Compose generates an unprompted message, bypassing the cache. In aris mode
// emoji are stripped from the result.
func (s *Service) Compose(ctx context.Context, userID int64, prompt string) (string, error) {
	st := s.settings.Get(ctx, userID)
	params := s.paramsFor(st)
	params.History = st.ChatHistory
	resp, err := s.gen.Generate(ctx, prompt, params)
	if err != nil {
		return "", err
	}
	if st.ArisMode {
		resp = StripEmoji(resp)
	}
	return resp, nil
}

// Speak synthesizes text when the user has TTS enabled. An empty path means
// no voice should be sent.
func (s *Service) Speak(ctx context.Context, userID int64, text string) string {
	if !s.settings.Get(ctx, userID).TTSEnabled {
		return ""
	}
	return s.synthesize(ctx, text)
}

// respond answers through the cache. Concurrent callers with the same key
// share one generation, which runs detached from any single caller so that a
// cancelled request only abandons its own wait.
func (s *Service) respond(ctx context.Context, st *model.UserSettings, text string) (string, bool, error) {
	prompt := text
	withFact := false
	if st.FactsEnabled && s.facts != nil {
		if fact, ok := s.facts.Fact(ctx, text); ok {
			prompt = text + "\n\n" + fact
			withFact = true
		}
	}

	key := cacheKey(persona(st), withFact, text)
	if resp, ok := s.cache.Lookup(ctx, key); ok {
		metrics.IncCacheHit()
		return resp, true, nil
	}
	metrics.IncCacheMiss()

	params := s.paramsFor(st)
	genCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(cache.Normalize(key), func() (any, error) {
		resp, err := s.gen.Generate(genCtx, prompt, params)
		if err != nil {
			return "", err
		}
		s.cache.Store(genCtx, key, resp)
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return "", false, &model.GenerationError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			var genErr *model.GenerationError
			if !errors.As(res.Err, &genErr) {
				return "", false, &model.GenerationError{Err: res.Err}
			}
			return "", false, res.Err
		}
		return res.Val.(string), false, nil
	}
}

func (s *Service) thought(ctx context.Context, st *model.UserSettings, text string) string {
	params := s.paramsFor(st)
	prompt := "Поделись одной короткой мыслью вслух по поводу: " + text
	resp, err := s.gen.Generate(ctx, prompt, params)
	if err != nil {
		s.log(ctx).Debug().Err(err).Msg("thought skipped")
		return ""
	}
	return "💭 " + resp
}

func (s *Service) synthesize(ctx context.Context, text string) string {
	if s.tts == nil {
		return ""
	}
	path, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		s.log(ctx).Error().Err(err).Msg("speech synthesis failed, sending text only")
		return ""
	}
	return path
}

// CleanupVoice removes a synthesized file once it has been sent.
func CleanupVoice(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

func (s *Service) paramsFor(st *model.UserSettings) llm.Params {
	p := s.params
	personas := s.personas.Load()
	p.System = personas.Base
	if st.ArisMode {
		p.System = personas.Aris
	}
	return p
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

func persona(st *model.UserSettings) string {
	if st.ArisMode {
		return personaAris
	}
	return personaBase
}

// cacheKey separates answers by persona and by whether a fact was added to
// the prompt.
func cacheKey(persona string, withFact bool, text string) string {
	if withFact {
		persona += "+facts"
	}
	return persona + "\x1f" + text
}
