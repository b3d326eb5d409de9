package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const validYAML = `
operator_id: 42
timezone: Asia/Jakarta
gateway:
  driver: telegram
  telegram:
    token: "123:abc"
    poll_timeout: 15s
    destinations:
      general: -100200300
      random: -100200301
storage:
  path: ./data/announcer.db
attachments:
  dir: ./data/attachments
poller:
  interval: 5s
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", validYAML)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OperatorID != 42 {
		t.Fatalf("operator_id = %d, want 42", cfg.OperatorID)
	}
	if got := cfg.Gateway.Telegram.Destinations["general"]; got != -100200300 {
		t.Fatalf("destinations[general] = %d", got)
	}
	if d, err := cfg.PollInterval(); err != nil || d != 5*time.Second {
		t.Fatalf("PollInterval = %v, %v", d, err)
	}
	if d, err := cfg.TelegramPollTimeout(); err != nil || d != 15*time.Second {
		t.Fatalf("TelegramPollTimeout = %v, %v", d, err)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Jakarta" {
		t.Fatalf("Location = %v, %v", loc, err)
	}
	if m.Get() != cfg {
		t.Fatalf("Get did not return committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.json", `{
		"operator_id": 7,
		"gateway": {"driver": "discord", "discord": {"token": "tok"}},
		"storage": {"path": "./db.sqlite"},
		"attachments": {"dir": "./blobs"},
		"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}}
	}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loc, err := cfg.Location(); err != nil || loc != time.UTC {
		t.Fatalf("default Location = %v, %v; want UTC", loc, err)
	}
	if d, err := cfg.PollInterval(); err != nil || d != 10*time.Second {
		t.Fatalf("default PollInterval = %v, %v; want 10s", d, err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", validYAML+"\nsurprise: true\n")
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("Parse accepted unknown field")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			OperatorID: 1,
			Gateway: GatewayConfig{
				Driver:  "discord",
				Discord: DiscordConfig{Token: "tok"},
			},
			Storage:     StorageConfig{Path: "./db"},
			Attachments: AttachmentsConfig{Dir: "./blobs"},
		}
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"missing operator", func(c *Config) { c.OperatorID = 0 }, "operator_id"},
		{"unknown driver", func(c *Config) { c.Gateway.Driver = "irc" }, "driver"},
		{"missing discord token", func(c *Config) { c.Gateway.Discord.Token = " " }, "discord.token"},
		{"telegram without destinations", func(c *Config) {
			c.Gateway.Driver = "telegram"
			c.Gateway.Telegram.Token = "tok"
		}, "destinations"},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"missing attachments dir", func(c *Config) { c.Attachments.Dir = "" }, "attachments.dir"},
		{"bad timezone", func(c *Config) { c.Timezone = "Nowhere/Nowhen" }, "timezone"},
		{"bad poll interval", func(c *Config) { c.Poller.Interval = "soon" }, "poller.interval"},
		{"negative poll interval", func(c *Config) { c.Poller.Interval = "-1s" }, "positive"},
		{"bad busy timeout", func(c *Config) { c.Storage.BusyTimeout = "never" }, "busy_timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate passed, want error containing %q", tc.wantSub)
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
