package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RichardoC/deeptok/internal/db"
)

const (
	DefaultPath          = "deeptok.yaml"
	DefaultAddr          = "127.0.0.1:8100"
	DefaultDBPath        = "deeptok.db"
	DefaultReplyDelay    = 1500 * time.Millisecond
	DefaultPrayerBaseURL = "https://api.myquran.com/v1"
	DefaultPrayerTimeout = 10 * time.Second
	DefaultAssistant     = "DeepTok"
)

// Config holds the resolved settings for both binaries.
type Config struct {
	Addr          string
	DBPath        string
	ReplyDelay    time.Duration
	PrayerBaseURL string
	PrayerTimeout time.Duration
	RedisAddr     string
	RedisPassword string
	LogLevel      string
	AssistantName string
}

// fileConfig mirrors the YAML file. Durations are Go duration strings.
type fileConfig struct {
	Addr          string `yaml:"addr"`
	DBPath        string `yaml:"dbPath"`
	ReplyDelay    string `yaml:"replyDelay"`
	PrayerBaseURL string `yaml:"prayerBaseURL"`
	PrayerTimeout string `yaml:"prayerTimeout"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	LogLevel      string `yaml:"logLevel"`
	AssistantName string `yaml:"assistantName"`
}

func defaults() fileConfig {
	return fileConfig{
		Addr:          DefaultAddr,
		DBPath:        DefaultDBPath,
		ReplyDelay:    DefaultReplyDelay.String(),
		PrayerBaseURL: DefaultPrayerBaseURL,
		PrayerTimeout: DefaultPrayerTimeout.String(),
		LogLevel:      "info",
		AssistantName: DefaultAssistant,
	}
}

// Load applies defaults, then the YAML file, then environment variables.
// The file is optional unless its path was given explicitly through
// DEEPTOK_CONFIG.
func Load() (Config, error) {
	path, explicit := os.LookupEnv("DEEPTOK_CONFIG")
	if !explicit || strings.TrimSpace(path) == "" {
		path = DefaultPath
		explicit = false
	}

	fc := defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	overrideString(&fc.Addr, "ADDR")
	overrideString(&fc.DBPath, "DB_PATH")
	overrideString(&fc.ReplyDelay, "REPLY_DELAY")
	overrideString(&fc.PrayerBaseURL, "PRAYER_BASE_URL")
	overrideString(&fc.PrayerTimeout, "PRAYER_TIMEOUT")
	overrideString(&fc.RedisAddr, "REDIS_ADDR")
	overrideString(&fc.RedisPassword, "REDIS_PASSWORD")
	overrideString(&fc.LogLevel, "LOG_LEVEL")
	overrideString(&fc.AssistantName, "ASSISTANT_NAME")

	return fc.resolve()
}

func (fc fileConfig) resolve() (Config, error) {
	delay, err := parseDuration("REPLY_DELAY", fc.ReplyDelay)
	if err != nil {
		return Config{}, err
	}
	timeout, err := parseDuration("PRAYER_TIMEOUT", fc.PrayerTimeout)
	if err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(fc.DBPath) == "" {
		return Config{}, errors.New("DB_PATH must not be empty")
	}
	if db.IsMemoryPath(fc.DBPath) {
		return Config{}, fmt.Errorf("invalid DB_PATH value %q: history must be stored in a file", fc.DBPath)
	}

	addr := strings.TrimSpace(fc.Addr)
	if addr == "" {
		addr = DefaultAddr
	} else if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	level := strings.ToLower(strings.TrimSpace(fc.LogLevel))
	switch level {
	case "debug", "info", "warn", "error":
	case "":
		level = "info"
	default:
		return Config{}, fmt.Errorf("invalid LOG_LEVEL value %q", fc.LogLevel)
	}

	assistant := strings.TrimSpace(fc.AssistantName)
	if assistant == "" {
		assistant = DefaultAssistant
	}

	return Config{
		Addr:          addr,
		DBPath:        fc.DBPath,
		ReplyDelay:    delay,
		PrayerBaseURL: strings.TrimSpace(fc.PrayerBaseURL),
		PrayerTimeout: timeout,
		RedisAddr:     strings.TrimSpace(fc.RedisAddr),
		RedisPassword: fc.RedisPassword,
		LogLevel:      level,
		AssistantName: assistant,
	}, nil
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return d, nil
}
