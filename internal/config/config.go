// Package config resolves runtime settings from defaults, an optional
// YAML config file and PAPERVOICE_* environment variables, in that
// order of precedence (environment wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	// OpenAI credentials and endpoint
	APIKey  string `env:"OPENAI_API_KEY" yaml:"api_key"`
	BaseURL string `env:"OPENAI_BASE_URL" yaml:"base_url"`

	// Simplification
	SimplifyModel string  `env:"SIMPLIFY_MODEL" yaml:"simplify_model"`
	MaxTokens     int64   `env:"SIMPLIFY_MAX_TOKENS" yaml:"simplify_max_tokens"`
	Temperature   float64 `env:"SIMPLIFY_TEMPERATURE" yaml:"simplify_temperature"`

	// Synthesis
	SpeechModel string  `env:"SPEECH_MODEL" yaml:"speech_model"`
	Voice       string  `env:"VOICE" yaml:"voice"`
	Speed       float64 `env:"SPEED" yaml:"speed"`

	// Playback
	SampleRate int `env:"SAMPLE_RATE" yaml:"sample_rate"`

	// Pipeline
	BufferCapacity int           `env:"BUFFER_CAPACITY" yaml:"buffer_capacity"`
	SynthAttempts  int           `env:"SYNTH_ATTEMPTS" yaml:"synth_attempts"`
	RetryDelay     time.Duration `env:"RETRY_DELAY" yaml:"retry_delay"`
	RateLimit      float64       `env:"RATE_LIMIT" yaml:"rate_limit"`

	// Caching
	RedisURL  string        `env:"REDIS_URL" yaml:"redis_url"`
	CacheTTL  time.Duration `env:"CACHE_TTL" yaml:"cache_ttl"`
	AudioDir  string        `env:"AUDIO_DIR" yaml:"audio_dir"`
	Compress  int           `env:"COMPRESSION_LEVEL" yaml:"compression_level"`
	CacheSkip bool          `env:"CACHE_SKIP" yaml:"cache_skip"`
}

// Default returns the reference settings. The API key has no default;
// it must come from the environment or the config file.
func Default() Config {
	return Config{
		SimplifyModel:  "gpt-4o-mini",
		MaxTokens:      300,
		Temperature:    0.2,
		SpeechModel:    "tts-1",
		Voice:          "alloy",
		Speed:          1.0,
		SampleRate:     24000,
		BufferCapacity: 3,
		SynthAttempts:  1,
		RetryDelay:     time.Second,
		RateLimit:      3,
		CacheTTL:       7 * 24 * time.Hour,
		Compress:       3,
	}
}

// Load resolves the configuration. When configFile is empty the
// default locations are searched; a missing config file is not an
// error.
func Load(configFile string) (Config, error) {
	cfg := Default()
	setDefaults(cfg)

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		addDefaultConfigPaths()
		viper.SetConfigName("papervoice")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile == "" {
			log.Warn("could not parse configuration file", "err", err)
		}
	}
	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("using configuration file", "path", used)
	}

	fromViper(&cfg)

	// Environment overrides everything.
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "PAPERVOICE_"}); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.AudioDir == "" {
		cfg.AudioDir = defaultAudioDir()
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.SimplifyModel == "":
		return fmt.Errorf("simplify_model must not be empty")
	case c.SpeechModel == "":
		return fmt.Errorf("speech_model must not be empty")
	case c.Voice == "":
		return fmt.Errorf("voice must not be empty")
	case c.Speed < 0.25 || c.Speed > 4.0:
		return fmt.Errorf("speed %v out of range [0.25, 4.0]", c.Speed)
	case c.BufferCapacity < 1 || c.BufferCapacity > 16:
		return fmt.Errorf("buffer_capacity %d out of range [1, 16]", c.BufferCapacity)
	case c.SynthAttempts < 1:
		return fmt.Errorf("synth_attempts must be at least 1")
	case c.RateLimit <= 0:
		return fmt.Errorf("rate_limit must be positive")
	case c.CacheTTL < 0:
		return fmt.Errorf("cache_ttl must not be negative")
	case c.Compress < 1 || c.Compress > 19:
		return fmt.Errorf("compression_level %d out of range [1, 19]", c.Compress)
	}
	return nil
}

func setDefaults(cfg Config) {
	viper.SetDefault("simplify_model", cfg.SimplifyModel)
	viper.SetDefault("simplify_max_tokens", cfg.MaxTokens)
	viper.SetDefault("simplify_temperature", cfg.Temperature)
	viper.SetDefault("speech_model", cfg.SpeechModel)
	viper.SetDefault("voice", cfg.Voice)
	viper.SetDefault("speed", cfg.Speed)
	viper.SetDefault("sample_rate", cfg.SampleRate)
	viper.SetDefault("buffer_capacity", cfg.BufferCapacity)
	viper.SetDefault("synth_attempts", cfg.SynthAttempts)
	viper.SetDefault("retry_delay", cfg.RetryDelay)
	viper.SetDefault("rate_limit", cfg.RateLimit)
	viper.SetDefault("redis_url", "")
	viper.SetDefault("cache_ttl", cfg.CacheTTL)
	viper.SetDefault("audio_dir", "")
	viper.SetDefault("compression_level", cfg.Compress)
	viper.SetDefault("cache_skip", false)
}

func fromViper(cfg *Config) {
	cfg.APIKey = viper.GetString("api_key")
	cfg.BaseURL = viper.GetString("base_url")
	cfg.SimplifyModel = viper.GetString("simplify_model")
	cfg.MaxTokens = viper.GetInt64("simplify_max_tokens")
	cfg.Temperature = viper.GetFloat64("simplify_temperature")
	cfg.SpeechModel = viper.GetString("speech_model")
	cfg.Voice = viper.GetString("voice")
	cfg.Speed = viper.GetFloat64("speed")
	cfg.SampleRate = viper.GetInt("sample_rate")
	cfg.BufferCapacity = viper.GetInt("buffer_capacity")
	cfg.SynthAttempts = viper.GetInt("synth_attempts")
	cfg.RetryDelay = viper.GetDuration("retry_delay")
	cfg.RateLimit = viper.GetFloat64("rate_limit")
	cfg.RedisURL = viper.GetString("redis_url")
	cfg.CacheTTL = viper.GetDuration("cache_ttl")
	cfg.AudioDir = viper.GetString("audio_dir")
	cfg.Compress = viper.GetInt("compression_level")
	cfg.CacheSkip = viper.GetBool("cache_skip")
}

func addDefaultConfigPaths() {
	scope := gap.NewScope(gap.User, "papervoice")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		dirs = nil
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "papervoice")}, dirs...)
	}
	if c := os.Getenv("PAPERVOICE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	for _, dir := range dirs {
		viper.AddConfigPath(dir)
	}
	viper.AddConfigPath(".")
}

func defaultAudioDir() string {
	scope := gap.NewScope(gap.User, "papervoice")
	dir, err := scope.CacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "papervoice", "audio")
	}
	return filepath.Join(dir, "audio")
}
