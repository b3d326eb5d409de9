package parser

import (
	"strings"
	"testing"
	"time"
)

func testNow(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestParseKeysAndPartition(t *testing.T) {
	t.Parallel()
	raw := strings.Join([]string{
		"Channel: general",
		"COLOR: blue",
		"mention: Gamers, Updates",
		"button: Website | https://example.com",
		"poll: true",
		"Big news coming soon!",
		"raw ping @here please",
	}, "\n")

	res := Parse(raw, testNow(t))
	cfg := res.Config

	if cfg.ChannelQuery != "general" {
		t.Fatalf("ChannelQuery = %q, want general", cfg.ChannelQuery)
	}
	if cfg.Color != 0x3498DB {
		t.Fatalf("Color = %#x, want %#x", cfg.Color, 0x3498DB)
	}
	if len(cfg.Mentions) != 2 || cfg.Mentions[0] != "Gamers" || cfg.Mentions[1] != "Updates" {
		t.Fatalf("Mentions = %v", cfg.Mentions)
	}
	if len(cfg.Buttons) != 1 || cfg.Buttons[0].Label != "Website" || cfg.Buttons[0].URL != "https://example.com" {
		t.Fatalf("Buttons = %v", cfg.Buttons)
	}
	if !cfg.Poll || cfg.Preview || cfg.Everyone {
		t.Fatalf("flags = poll=%v preview=%v everyone=%v", cfg.Poll, cfg.Preview, cfg.Everyone)
	}
	if res.Partition.Body != "Big news coming soon!" {
		t.Fatalf("Body = %q", res.Partition.Body)
	}
	if res.Partition.Sidecar != "raw ping @here please" {
		t.Fatalf("Sidecar = %q", res.Partition.Sidecar)
	}
	if len(res.Ignored) != 0 {
		t.Fatalf("unexpected ignored lines: %v", res.Ignored)
	}
}

func TestParseMalformedLinesNeverAbort(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		key  string
	}{
		{name: "bad color", raw: "color: chartreuse", key: "color"},
		{name: "bad hex", raw: "color: 0xZZZ", key: "color"},
		{name: "button missing url", raw: "button: Just a label", key: "button"},
		{name: "bad schedule", raw: "schedule: whenever", key: "schedule"},
		{name: "empty channel", raw: "channel:", key: "channel"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := Parse(tt.raw+"\ncolor: green\nhello", testNow(t))
			if len(res.Ignored) != 1 || res.Ignored[0].Key != tt.key {
				t.Fatalf("Ignored = %v, want one %q entry", res.Ignored, tt.key)
			}
			// Later keys and content are unaffected.
			if res.Config.Color != 0x2ECC71 {
				t.Fatalf("Color = %#x, want green", res.Config.Color)
			}
			if res.Partition.Body != "hello" {
				t.Fatalf("Body = %q", res.Partition.Body)
			}
		})
	}
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()
	res := Parse("just content", testNow(t))
	cfg := res.Config
	if cfg.Color != DefaultColor {
		t.Fatalf("Color = %#x, want default", cfg.Color)
	}
	if cfg.ChannelQuery != "" || cfg.ScheduleAt != nil {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Everyone || cfg.Preview || cfg.Poll {
		t.Fatalf("flags should default to false: %+v", cfg)
	}
}

func TestParseBooleansOnlyTrue(t *testing.T) {
	t.Parallel()
	for _, v := range []string{"TRUE", "True", "true"} {
		res := Parse("everyone: "+v, testNow(t))
		if !res.Config.Everyone {
			t.Fatalf("everyone: %s should be true", v)
		}
	}
	for _, v := range []string{"yes", "1", "on", ""} {
		res := Parse("everyone: "+v, testNow(t))
		if res.Config.Everyone {
			t.Fatalf("everyone: %q should be false", v)
		}
	}
}

func TestParseEveryoneAppendsBroadcastMarker(t *testing.T) {
	t.Parallel()
	res := Parse("everyone: true\nhello", testNow(t))
	if res.Partition.Sidecar != "@everyone" {
		t.Fatalf("Sidecar = %q, want @everyone", res.Partition.Sidecar)
	}
	if res.Partition.Body != "hello" {
		t.Fatalf("Body = %q", res.Partition.Body)
	}
}

func TestParseMentionsAccumulate(t *testing.T) {
	t.Parallel()
	res := Parse("mention: a, b\nmention: , ,c", testNow(t))
	got := res.Config.Mentions
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("Mentions = %v", got)
	}
}

func TestParseHexColor(t *testing.T) {
	t.Parallel()
	res := Parse("color: 0xAB12CD", testNow(t))
	if res.Config.Color != 0xAB12CD {
		t.Fatalf("Color = %#x", res.Config.Color)
	}
}
