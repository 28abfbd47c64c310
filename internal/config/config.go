package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ListenAddr             string
	DBPath                 string
	AudioDir               string
	FFprobePath            string
	ScribeURL              string
	Language               string
	MaxMessageLen          int
	SettleDelaySeconds     int
	PollIntervalSeconds    int
	JobTTLHours            int
	CleanupIntervalMinutes int
	CORSOrigins            []string
}

func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("SCRIBEQ_LISTEN_ADDR", ":8080"),
		DBPath:      getEnv("SCRIBEQ_DB_PATH", "scribeq.db"),
		AudioDir:    getEnv("SCRIBEQ_AUDIO_DIR", "audio_files"),
		FFprobePath: getEnv("SCRIBEQ_FFPROBE_PATH", "ffprobe"),
		ScribeURL:   getEnv("SCRIBEQ_SCRIBE_URL", ""),
		Language:    getEnv("SCRIBEQ_LANGUAGE", "russian"),
	}

	if cfg.ScribeURL == "" {
		return nil, errors.New("SCRIBEQ_SCRIBE_URL must not be empty")
	}
	u, err := url.Parse(cfg.ScribeURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("SCRIBEQ_SCRIBE_URL %q is not an absolute URL", cfg.ScribeURL)
	}
	cfg.ScribeURL = strings.TrimRight(cfg.ScribeURL, "/")

	cfg.MaxMessageLen, err = getEnvInt("SCRIBEQ_MAX_MESSAGE_LEN", 4096)
	if err != nil {
		return nil, fmt.Errorf("SCRIBEQ_MAX_MESSAGE_LEN: %w", err)
	}
	if cfg.MaxMessageLen < 1 {
		return nil, errors.New("SCRIBEQ_MAX_MESSAGE_LEN must be > 0")
	}

	cfg.SettleDelaySeconds, err = getEnvInt("SCRIBEQ_SETTLE_DELAY_SECONDS", 8)
	if err != nil {
		return nil, fmt.Errorf("SCRIBEQ_SETTLE_DELAY_SECONDS: %w", err)
	}
	if cfg.SettleDelaySeconds < 0 {
		return nil, errors.New("SCRIBEQ_SETTLE_DELAY_SECONDS must be >= 0")
	}

	cfg.PollIntervalSeconds, err = getEnvInt("SCRIBEQ_POLL_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, fmt.Errorf("SCRIBEQ_POLL_INTERVAL_SECONDS: %w", err)
	}
	if cfg.PollIntervalSeconds < 1 {
		return nil, errors.New("SCRIBEQ_POLL_INTERVAL_SECONDS must be > 0")
	}

	cfg.JobTTLHours, err = getEnvInt("SCRIBEQ_JOB_TTL_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("SCRIBEQ_JOB_TTL_HOURS: %w", err)
	}

	cfg.CleanupIntervalMinutes, err = getEnvInt("SCRIBEQ_CLEANUP_INTERVAL_MINUTES", 60)
	if err != nil {
		return nil, fmt.Errorf("SCRIBEQ_CLEANUP_INTERVAL_MINUTES: %w", err)
	}

	if raw := getEnv("SCRIBEQ_CORS_ORIGINS", ""); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}
