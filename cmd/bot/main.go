package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"aris/internal/api"
	"aris/internal/autochat"
	"aris/internal/bot"
	"aris/internal/cache"
	"aris/internal/chat"
	"aris/internal/config"
	"aris/internal/db"
	"aris/internal/events"
	"aris/internal/llm"
	"aris/internal/metrics"
	"aris/internal/model"
	"aris/internal/reminders"
	"aris/internal/settings"
	"aris/internal/speech"
	"aris/internal/storage/filestore"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	configPath := pflag.String("config", os.Getenv("ARIS_CONFIG_PATH"), "path to config.yaml")
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before the config")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Str("path", *envFile).Msg("failed to load env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil && cfg.Log.Level != "" {
		logger = logger.Level(level)
	}

	storage, database, err := openStorage(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open storage error")
	}
	if database != nil {
		defer database.Close()
	}
	store := settings.NewStore(storage, logger)
	bus := events.NewBus(logger)
	store.SetPublisher(bus)

	mem := cache.NewMemoryCache(cfg.CacheTTL(), cfg.CacheHighWater(), logger)
	var responses cache.ResponseCache = mem
	var rdb *redis.Client
	if cfg.Cache.RedisEnabled && cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		responses = cache.NewTiered(mem, cache.NewRedisCache(rdb, cfg.CacheTTL(), logger))
	}

	personas := config.DefaultPersonas()
	if cfg.LLM.PersonasPath != "" {
		if personas, err = config.LoadPersonas(cfg.LLM.PersonasPath); err != nil {
			logger.Fatal().Err(err).Msg("failed to load personas")
		}
	}

	generator := llm.NewOpenAIGenerator(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLMTimeout(),
	})
	params := llm.DefaultParams()
	params.MaxTokens = cfg.LLMMaxTokens()
	params.Temperature = cfg.LLMTemperature()
	params.TopP = cfg.LLMTopP()

	deps := chat.Deps{
		Settings:  store,
		Cache:     responses,
		Generator: generator,
		Facts:     mergeFacts(personas.Facts),
	}
	if !cfg.Speech.Disabled {
		speechCfg := speech.Config{
			BaseURL:  cfg.Speech.BaseURL,
			APIKey:   cfg.Speech.APIKey,
			STTModel: cfg.Speech.STTModel,
			TTSModel: cfg.Speech.TTSModel,
			TTSVoice: cfg.Speech.TTSVoice,
			TempDir:  cfg.Speech.TempDir,
		}
		if speechCfg.APIKey == "" {
			speechCfg.BaseURL, speechCfg.APIKey = cfg.LLM.BaseURL, cfg.LLM.APIKey
		}
		deps.Transcriber = speech.NewOpenAITranscriber(speechCfg)
		deps.Synthesizer = speech.NewRetryingSynthesizer(speech.NewOpenAISynthesizer(speechCfg), speech.RetryConfig{
			Attempts:  cfg.SpeechRetryAttempts(),
			BaseDelay: cfg.SpeechRetryBaseDelay(),
		}, &logger)
	}
	svc := chat.NewService(deps, chat.Personas{Base: personas.Base, Aris: personas.Aris}, params, logger)

	scheduler, err := reminders.NewScheduler(reminders.SchedulerConfig{
		Timezone:      cfg.ReminderTimezone(),
		CheckInterval: cfg.ReminderCheckInterval(),
	}, store, nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create reminder scheduler error")
	}

	autoChat := autochat.NewManager(svc, store, nil, autochat.NewTopicPrompter(cfg.AutoChat.Seed, personas.Topics), autochat.Config{
		Interval:   cfg.AutoChatInterval(),
		FirstDelay: cfg.AutoChatFirstDelay(),
		Cooldown:   cfg.AutoChatCooldown(),
	}, logger)
	// Changes made over HTTP reach the active set of the user's private chat.
	bus.Subscribe(events.FlagChanged, func(e events.Event) {
		if e.Flag != model.FlagAutoChat {
			return
		}
		if e.Value {
			autoChat.Activate(e.UserID, e.UserID)
			return
		}
		autoChat.Deactivate(e.UserID)
	})

	b, err := bot.New(cfg.Telegram.BotToken, bot.Deps{
		Chat:      svc,
		Settings:  store,
		AutoChat:  autoChat,
		Reminders: scheduler,
	}, bot.Options{
		ModelName: cfg.LLM.Model,
		VoiceName: cfg.Speech.TTSVoice,
		Debug:     cfg.Telegram.Debug,
	}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}
	autoChat.SetSender(b)
	scheduler.SetNotifier(b)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := autoChat.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to restore auto-chat sessions")
	} else if n > 0 {
		logger.Info().Int("chats", n).Msg("auto-chat sessions restored")
	}

	if cfg.LLM.PersonasPath != "" {
		if err := config.WatchPersonas(ctx, cfg.LLM.PersonasPath, 30*time.Second, func(p *config.PersonasConfig) {
			svc.SetPersonas(chat.Personas{Base: p.Base, Aris: p.Aris})
			logger.Info().Time("reloaded_at", time.Now()).Msg("personas reloaded")
		}); err != nil {
			logger.Error().Err(err).Msg("personas watch failed")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { b.Start(gctx); return nil })
	g.Go(func() error { autoChat.Run(gctx); return nil })
	g.Go(func() error { scheduler.Start(gctx); return nil })
	g.Go(func() error { mem.Run(gctx, cfg.CacheSweepInterval()); return nil })
	g.Go(func() error { store.RunFlusher(gctx, cfg.FlushInterval()); return nil })

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	g.Go(func() error {
		startHealthServer(gctx, cfg.Monitoring.HealthCheckPort, readinessChecks(database, rdb), &logger)
		return nil
	})

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		g.Go(func() error { startMetricsServer(gctx, cfg.Monitoring.PrometheusPort, &logger); return nil })
	}

	if cfg.HTTP.Enabled {
		srv := api.NewHTTPServer(cfg.HTTPPort(), cfg.HTTP.APIKey, store, svc, responses, logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(ctxShutdown)
		})
	}

	if cfg.Backup.Enabled && database != nil {
		g.Go(func() error { startBackupLoop(gctx, database, cfg, &logger); return nil })
	}

	logger.Info().Str("storage", cfg.Storage.Backend).Bool("redis", rdb != nil).Msg("aris bot started")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("shutdown after error")
	}

	ctxFlush, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if left := store.Flush(ctxFlush); left > 0 {
		logger.Error().Int("users", left).Msg("settings not persisted on shutdown")
	}
	logger.Info().Msg("aris bot stopped")
}

// openStorage returns the durable settings backend and, for sqlite, the
// database handle used by backups and readiness checks.
func openStorage(cfg *config.Config, logger *zerolog.Logger) (settings.Storage, *db.DB, error) {
	if cfg.Storage.Backend == config.BackendFile {
		fs, err := filestore.New(cfg.Storage.SettingsDir)
		return fs, nil, err
	}

	database, err := db.NewDB(cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Storage.Fallback {
		return database, database, nil
	}
	fs, err := filestore.New(cfg.Storage.SettingsDir)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return settings.NewFailoverStorage(database, fs, logger), database, nil
}

func mergeFacts(extra map[string]string) chat.KeywordFacts {
	facts := make(chat.KeywordFacts, len(chat.DefaultFacts)+len(extra))
	for k, v := range chat.DefaultFacts {
		facts[k] = v
	}
	for k, v := range extra {
		facts[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return facts
}
