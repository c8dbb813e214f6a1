// Package config loads the dashboard configuration from the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full client configuration.
type Config struct {
	Server  ServerConfig
	Channel ChannelConfig
	Alerts  AlertsConfig
	Frames  FramesConfig
	Chat    ChatConfig
	Audio   AudioConfig
	Storage StorageConfig
	Log     LogConfig
	Metrics MetricsConfig
}

type ServerConfig struct {
	BaseURL     string
	Language    string
	HTTPTimeout time.Duration
}

// ChannelConfig controls the live event channel and its reconnection policy.
type ChannelConfig struct {
	Path           string
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	ConnectTimeout time.Duration
}

type AlertsConfig struct {
	Capacity    int
	TTL         time.Duration
	Cooldown    time.Duration
	SeedLimit   int
	Notify      bool
	SweepPeriod time.Duration
}

type FramesConfig struct {
	Width      int
	Height     int
	StaleAfter time.Duration
}

type ChatConfig struct {
	Streaming bool
	Speak     bool
	// StreamMode is "incremental" (chunks are new text) or "cumulative"
	// (one newline-terminated snapshot per line).
	StreamMode string
}

type AudioConfig struct {
	SampleRate int
	Player     string
}

type StorageConfig struct {
	DBPath          string
	WeatherCacheTTL time.Duration
}

type LogConfig struct {
	Level  string
	Debug  bool
	Output string
	File   string
}

type MetricsConfig struct {
	Addr string
}

// Load reads envFile (when non-empty, or .env when present) and the process
// environment, filling every unset key with its default.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		// .env is optional
		_ = godotenv.Load()
	}

	dataDir := DefaultDataDir()

	cfg := &Config{
		Server: ServerConfig{
			BaseURL:     getEnv("AGROVISION_SERVER_URL", "http://localhost:5000"),
			Language:    getEnv("AGROVISION_LANG", "en"),
			HTTPTimeout: getEnvAsDuration("AGROVISION_HTTP_TIMEOUT", 60*time.Second),
		},
		Channel: ChannelConfig{
			Path:           getEnv("CHANNEL_PATH", "/socket.io/"),
			MaxAttempts:    getEnvAsInt("CHANNEL_MAX_ATTEMPTS", 5),
			InitialDelay:   getEnvAsDuration("CHANNEL_INITIAL_DELAY", time.Second),
			MaxDelay:       getEnvAsDuration("CHANNEL_MAX_DELAY", 5*time.Second),
			ConnectTimeout: getEnvAsDuration("CHANNEL_CONNECT_TIMEOUT", 20*time.Second),
		},
		Alerts: AlertsConfig{
			Capacity:    getEnvAsInt("ALERT_CAPACITY", 5),
			TTL:         getEnvAsDuration("ALERT_TTL", time.Hour),
			Cooldown:    getEnvAsDuration("ALERT_COOLDOWN", 300*time.Second),
			SeedLimit:   getEnvAsInt("ALERT_SEED_LIMIT", 10),
			Notify:      getEnvAsBool("ALERT_NOTIFY", true),
			SweepPeriod: getEnvAsDuration("ALERT_SWEEP_PERIOD", time.Minute),
		},
		Frames: FramesConfig{
			Width:      getEnvAsInt("FRAME_WIDTH", 32),
			Height:     getEnvAsInt("FRAME_HEIGHT", 12),
			StaleAfter: getEnvAsDuration("FRAME_STALE_AFTER", 10*time.Second),
		},
		Chat: ChatConfig{
			Streaming:  getEnvAsBool("CHAT_STREAMING", true),
			Speak:      getEnvAsBool("CHAT_SPEAK", true),
			StreamMode: strings.ToLower(getEnv("CHAT_STREAM_MODE", "incremental")),
		},
		Audio: AudioConfig{
			SampleRate: getEnvAsInt("AUDIO_SAMPLE_RATE", 16000),
			Player:     getEnv("AUDIO_PLAYER", ""),
		},
		Storage: StorageConfig{
			DBPath:          getEnv("AGROVISION_DB_PATH", filepath.Join(dataDir, "agrovision.sqlite")),
			WeatherCacheTTL: getEnvAsDuration("WEATHER_CACHE_TTL", 10*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Debug:  getEnvAsBool("DEBUG", false),
			Output: getEnv("LOG_OUTPUT", "file"),
			File:   getEnv("LOG_FILE_PATH", filepath.Join(dataDir, "agrovision.log")),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid AGROVISION_SERVER_URL %q", c.Server.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("AGROVISION_SERVER_URL must be http or https, got %q", u.Scheme)
	}

	var errs []error
	if c.Channel.MaxAttempts < 0 {
		errs = append(errs, errors.New("CHANNEL_MAX_ATTEMPTS must not be negative"))
	}
	if c.Channel.InitialDelay <= 0 || c.Channel.MaxDelay < c.Channel.InitialDelay {
		errs = append(errs, errors.New("CHANNEL_MAX_DELAY must be at least CHANNEL_INITIAL_DELAY"))
	}
	if c.Alerts.Capacity <= 0 {
		errs = append(errs, errors.New("ALERT_CAPACITY must be positive"))
	}
	if c.Alerts.TTL <= 0 {
		errs = append(errs, errors.New("ALERT_TTL must be positive"))
	}
	if c.Alerts.Cooldown < 0 {
		errs = append(errs, errors.New("ALERT_COOLDOWN must not be negative"))
	}
	if c.Frames.Width <= 0 || c.Frames.Height <= 0 {
		errs = append(errs, errors.New("FRAME_WIDTH and FRAME_HEIGHT must be positive"))
	}
	switch c.Chat.StreamMode {
	case "incremental", "cumulative":
	default:
		errs = append(errs, fmt.Errorf("CHAT_STREAM_MODE must be incremental or cumulative, got %q", c.Chat.StreamMode))
	}
	switch c.Log.Output {
	case "file", "stdout", "stderr":
	default:
		errs = append(errs, fmt.Errorf("LOG_OUTPUT must be file, stdout or stderr, got %q", c.Log.Output))
	}
	return errors.Join(errs...)
}

// DefaultDataDir returns the per-user directory for the database and logs.
func DefaultDataDir() string {
	if dir := os.Getenv("AGROVISION_DATA_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		base = home
	}
	return filepath.Join(base, "agrovision")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s", "5m") or bare seconds ("300").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
