package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the whole announcer configuration.
//
// The file may be JSON or YAML; YAML is coerced to JSON bytes so both formats
// go through the same strict decoder (DisallowUnknownFields).
type Config struct {
	// OperatorID is the single identity allowed to author announcements.
	OperatorID int64 `json:"operator_id"`

	// Timezone fixes the zone used for schedule resolution and run_at storage.
	// Defaults to UTC.
	Timezone string `json:"timezone,omitempty"`

	Gateway     GatewayConfig     `json:"gateway"`
	Storage     StorageConfig     `json:"storage"`
	Attachments AttachmentsConfig `json:"attachments"`
	Poller      PollerConfig      `json:"poller,omitempty"`
	Logging     LoggingConfig     `json:"logging"`
}

type GatewayConfig struct {
	// Driver selects the chat platform: "discord" or "telegram".
	Driver   string         `json:"driver"`
	Discord  DiscordConfig  `json:"discord,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// Destinations maps announcement destination names to chat IDs.
	// Telegram offers no chat enumeration, so the operator declares them here.
	Destinations map[string]int64 `json:"destinations,omitempty"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type AttachmentsConfig struct {
	// Dir holds persisted attachment blobs for deferred announcements.
	Dir string `json:"dir"`
}

// PollerConfig controls the due-announcement poll loop.
type PollerConfig struct {
	// Interval is a Go duration string. Defaults to "10s".
	Interval string `json:"interval,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Validate checks the invariants app bootstrap relies on.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.OperatorID == 0 {
		return errors.New("operator_id is required")
	}
	driver := strings.ToLower(strings.TrimSpace(c.Gateway.Driver))
	switch driver {
	case "discord":
		if strings.TrimSpace(c.Gateway.Discord.Token) == "" {
			return errors.New("gateway.discord.token is required")
		}
	case "telegram":
		if strings.TrimSpace(c.Gateway.Telegram.Token) == "" {
			return errors.New("gateway.telegram.token is required")
		}
		if len(c.Gateway.Telegram.Destinations) == 0 {
			return errors.New("gateway.telegram.destinations is required")
		}
		if _, err := c.TelegramPollTimeout(); err != nil {
			return fmt.Errorf("gateway.telegram.poll_timeout: %w", err)
		}
	default:
		return fmt.Errorf("unknown gateway driver: %q", c.Gateway.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if strings.TrimSpace(c.Attachments.Dir) == "" {
		return errors.New("attachments.dir is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if _, err := c.BusyTimeout(); err != nil {
		return fmt.Errorf("storage.busy_timeout: %w", err)
	}
	if d, err := c.PollInterval(); err != nil {
		return fmt.Errorf("poller.interval: %w", err)
	} else if d <= 0 {
		return errors.New("poller.interval must be positive")
	}
	return nil
}

// Location loads the configured fixed zone (UTC when unset).
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

// PollInterval parses the poller interval, defaulting to 10s.
func (c *Config) PollInterval() (time.Duration, error) {
	raw := strings.TrimSpace(c.Poller.Interval)
	if raw == "" {
		return 10 * time.Second, nil
	}
	return time.ParseDuration(raw)
}

// TelegramPollTimeout parses gateway.telegram.poll_timeout (0 when unset,
// letting the adapter pick its default).
func (c *Config) TelegramPollTimeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.Gateway.Telegram.PollTimeout)
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// BusyTimeout parses storage.busy_timeout (0 when unset).
func (c *Config) BusyTimeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.Storage.BusyTimeout)
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
