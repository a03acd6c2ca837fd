// Package config loads environment variables into a typed Config used across the service.
// Required credentials are validated up front so a misconfigured deployment fails at startup
// instead of on the first tick.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go-simpler.org/env"
)

// DefaultBotName is used to derive the log directory when BOT_NAME is unset.
const DefaultBotName = "DiscordBot"

type Config struct {
	// Discord
	DiscordToken        string        `env:"TOKEN"`
	NotificationChannel string        `env:"TWITCH_NOTIFICATION_CHANNEL"`
	DiscordReadyTimeout time.Duration `env:"DISCORD_READY_TIMEOUT" default:"30s"`

	// Twitch
	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	TwitchUsernames    string `env:"TWITCH_USERNAMES"`

	// Loop
	PollInterval time.Duration `env:"POLL_INTERVAL" default:"60s"`

	// Logging
	BotName   string `env:"BOT_NAME" default:"DiscordBot"`
	LogRoot   string `env:"LOG_ROOT" default:"/home/cordo"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Ops
	HTTPAddr string `env:"HTTP_ADDR" default:":8080"`
	DBDsn    string `env:"DB_DSN"`

	// Watchlist is TwitchUsernames split, trimmed, lower-cased and de-duplicated.
	Watchlist []string
}

// Load reads environment variables, applies defaults and validates required settings.
// An empty watchlist is not an error; callers should warn about it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if cfg.BotName == "" {
		cfg.BotName = DefaultBotName
	}
	cfg.Watchlist = ParseWatchlist(cfg.TwitchUsernames)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"TOKEN", cfg.DiscordToken},
		{"TWITCH_NOTIFICATION_CHANNEL", cfg.NotificationChannel},
		{"TWITCH_CLIENT_ID", cfg.TwitchClientID},
		{"TWITCH_CLIENT_SECRET", cfg.TwitchClientSecret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if id, err := strconv.ParseUint(cfg.NotificationChannel, 10, 64); err != nil || id == 0 {
		return fmt.Errorf("TWITCH_NOTIFICATION_CHANNEL must be a numeric channel id, got %q", cfg.NotificationChannel)
	}
	if cfg.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if cfg.DiscordReadyTimeout <= 0 {
		return errors.New("DISCORD_READY_TIMEOUT must be positive")
	}
	return nil
}

// LogFile returns the per-deployment log file path: <LOG_ROOT>/<BOT_NAME>/logs/bot.log.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogRoot, c.BotName, "logs", "bot.log")
}

// HTTPEnabled reports whether the ops HTTP server should run.
func (c *Config) HTTPEnabled() bool {
	return c.HTTPAddr != "" && !strings.EqualFold(c.HTTPAddr, "off")
}

// ParseWatchlist turns a comma-separated login list into an ordered, de-duplicated watchlist.
// Stray backslashes (left over from shell-escaped .env files) are dropped.
func ParseWatchlist(raw string) []string {
	raw = strings.ReplaceAll(raw, `\`, "")
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		login := strings.ToLower(strings.TrimSpace(part))
		if login == "" {
			continue
		}
		if _, dup := seen[login]; dup {
			continue
		}
		seen[login] = struct{}{}
		out = append(out, login)
	}
	return out
}
