// Package config loads the YAML configuration of the assistant.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Storage struct {
		Backend     string `yaml:"backend"`
		Path        string `yaml:"path"`
		SettingsDir string `yaml:"settings_dir"`
		// Fallback keeps a file copy when the sqlite backend is unavailable.
		Fallback      bool `yaml:"fallback"`
		FlushInterval int  `yaml:"flush_interval_seconds"`
	} `yaml:"storage"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Cache struct {
		TTLSeconds           int  `yaml:"ttl_seconds"`
		HighWater            int  `yaml:"high_water"`
		SweepIntervalSeconds int  `yaml:"sweep_interval_seconds"`
		RedisEnabled         bool `yaml:"redis_enabled"`
	} `yaml:"cache"`

	LLM struct {
		BaseURL        string   `yaml:"base_url"`
		APIKey         string   `yaml:"api_key"`
		Model          string   `yaml:"model"`
		MaxTokens      int      `yaml:"max_tokens"`
		Temperature    *float32 `yaml:"temperature"`
		TopP           *float32 `yaml:"top_p"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		PersonasPath   string   `yaml:"personas_path"`
	} `yaml:"llm"`

	Speech struct {
		BaseURL          string `yaml:"base_url"`
		APIKey           string `yaml:"api_key"`
		TTSModel         string `yaml:"tts_model"`
		TTSVoice         string `yaml:"tts_voice"`
		STTModel         string `yaml:"stt_model"`
		TempDir          string `yaml:"temp_dir"`
		RetryAttempts    int    `yaml:"retry_attempts"`
		RetryBaseDelayMS int    `yaml:"retry_base_delay_ms"`
		Disabled         bool   `yaml:"disabled"`
	} `yaml:"speech"`

	AutoChat struct {
		IntervalSeconds   int   `yaml:"interval_seconds"`
		FirstDelaySeconds int   `yaml:"first_delay_seconds"`
		CooldownSeconds   int   `yaml:"cooldown_seconds"`
		Seed              int64 `yaml:"seed"`
	} `yaml:"autochat"`

	Reminders struct {
		Timezone             string `yaml:"timezone"`
		CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
	} `yaml:"reminders"`

	HTTP struct {
		Enabled bool   `yaml:"enabled"`
		Port    int    `yaml:"port"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"http"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendSQLite
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/aris.db"
	}
	if cfg.Storage.SettingsDir == "" {
		cfg.Storage.SettingsDir = "data/user_settings"
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	switch c.Storage.Backend {
	case BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendSQLite, BackendFile, c.Storage.Backend)
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must not be negative")
	}
	return nil
}

func seconds(v, def int) time.Duration {
	if v <= 0 {
		return time.Duration(def) * time.Second
	}
	return time.Duration(v) * time.Second
}

func (c *Config) CacheTTL() time.Duration { return seconds(c.Cache.TTLSeconds, 3600) }

func (c *Config) CacheHighWater() int {
	if c.Cache.HighWater <= 0 {
		return 1000
	}
	return c.Cache.HighWater
}

func (c *Config) CacheSweepInterval() time.Duration {
	return seconds(c.Cache.SweepIntervalSeconds, 600)
}

func (c *Config) LLMTimeout() time.Duration { return seconds(c.LLM.TimeoutSeconds, 60) }

func (c *Config) LLMMaxTokens() int {
	if c.LLM.MaxTokens == 0 {
		return 128
	}
	return c.LLM.MaxTokens
}

func (c *Config) LLMTemperature() float32 {
	if c.LLM.Temperature == nil {
		return 1.2
	}
	return *c.LLM.Temperature
}

func (c *Config) LLMTopP() float32 {
	if c.LLM.TopP == nil {
		return 0.9
	}
	return *c.LLM.TopP
}

func (c *Config) SpeechRetryAttempts() int {
	if c.Speech.RetryAttempts <= 0 {
		return 3
	}
	return c.Speech.RetryAttempts
}

func (c *Config) SpeechRetryBaseDelay() time.Duration {
	if c.Speech.RetryBaseDelayMS <= 0 {
		return time.Second
	}
	return time.Duration(c.Speech.RetryBaseDelayMS) * time.Millisecond
}

func (c *Config) AutoChatInterval() time.Duration {
	return seconds(c.AutoChat.IntervalSeconds, 300)
}

func (c *Config) AutoChatFirstDelay() time.Duration {
	return seconds(c.AutoChat.FirstDelaySeconds, 10)
}

func (c *Config) AutoChatCooldown() time.Duration {
	return seconds(c.AutoChat.CooldownSeconds, 1800)
}

func (c *Config) ReminderTimezone() string {
	if c.Reminders.Timezone == "" {
		return "Asia/Irkutsk"
	}
	return c.Reminders.Timezone
}

func (c *Config) ReminderCheckInterval() time.Duration {
	return seconds(c.Reminders.CheckIntervalSeconds, 60)
}

func (c *Config) FlushInterval() time.Duration {
	return seconds(c.Storage.FlushInterval, 30)
}

func (c *Config) HTTPPort() int {
	if c.HTTP.Port <= 0 {
		return 8000
	}
	return c.HTTP.Port
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	if c.Backup.RetentionDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

func (c *Config) BackupPath() string {
	if c.Backup.Path == "" {
		return "backups"
	}
	return c.Backup.Path
}
