// Package parser turns a raw operator message into an announcement
// configuration plus a content partition.
//
// The grammar is deliberately forgiving: recognized key lines configure the
// announcement, everything else is content. A malformed value never fails the
// parse — the offending line is recorded in Result.Ignored and the key keeps
// its default.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultColor is the neutral embed color used when no color: line resolves.
const DefaultColor = 0x2B2D31

// Config is the announcement configuration parsed from one message.
// It is ephemeral; scheduled announcements persist the raw text and re-parse.
type Config struct {
	Color        int
	Everyone     bool
	Preview      bool
	Poll         bool
	ChannelQuery string
	ScheduleAt   *time.Time
	Buttons      []Button
	Mentions     []string
}

// Button is a link button attached to the announcement.
type Button struct {
	Label string
	URL   string
}

// Partition splits non-key content lines by render location.
type Partition struct {
	Body    string // rendered inside the announcement body
	Sidecar string // rendered outside it (raw mention tokens, broadcast marker)
}

// IgnoredLine records a key line whose value didn't parse.
// The line was dropped; the key kept its default.
type IgnoredLine struct {
	Key    string
	Line   string
	Reason string
}

type Result struct {
	Config    Config
	Partition Partition
	Ignored   []IgnoredLine
}

var colorNames = map[string]int{
	"red":     0xFF0000,
	"blue":    0x3498DB,
	"green":   0x2ECC71,
	"yellow":  0xF1C40F,
	"orange":  0xE67E22,
	"purple":  0x9B59B6,
	"black":   0x000000,
	"white":   0xFFFFFF,
	"gold":    0xF1C40F,
	"pink":    0xE91E63,
	"cyan":    0x00BCD4,
	"default": DefaultColor,
}

// Parse processes raw line by line. Line order doesn't matter for keys;
// content lines keep their relative order within each partition.
// now must carry the fixed zone used for schedule resolution.
func Parse(raw string, now time.Time) Result {
	res := Result{Config: Config{Color: DefaultColor}}

	var body, sidecar []string
	for _, line := range strings.Split(raw, "\n") {
		clean := strings.TrimSpace(line)
		lower := strings.ToLower(clean)

		key, value, isKey := splitKeyLine(clean, lower)
		if !isKey {
			// Raw broadcast tokens stay outside the announcement body.
			if strings.Contains(line, "@everyone") || strings.Contains(line, "@here") {
				sidecar = append(sidecar, line)
			} else {
				body = append(body, line)
			}
			continue
		}

		if err := res.applyKey(key, value, now); err != nil {
			res.Ignored = append(res.Ignored, IgnoredLine{Key: key, Line: clean, Reason: err.Error()})
		}
	}

	if res.Config.Everyone {
		sidecar = append(sidecar, "@everyone")
	}

	res.Partition.Body = strings.Join(body, "\n")
	res.Partition.Sidecar = strings.Join(sidecar, "\n")
	return res
}

var keys = []string{"channel", "mention", "everyone", "preview", "poll", "schedule", "color", "button"}

// splitKeyLine matches a case-insensitive "key:" prefix and returns the key
// plus the trimmed remainder of the line.
func splitKeyLine(clean, lower string) (key, value string, ok bool) {
	for _, k := range keys {
		if strings.HasPrefix(lower, k+":") {
			return k, strings.TrimSpace(clean[len(k)+1:]), true
		}
	}
	return "", "", false
}

func (r *Result) applyKey(key, value string, now time.Time) error {
	cfg := &r.Config
	switch key {
	case "channel":
		if value == "" {
			return errors.New("empty channel name")
		}
		cfg.ChannelQuery = value
	case "mention":
		for _, tok := range strings.Split(value, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				cfg.Mentions = append(cfg.Mentions, tok)
			}
		}
	case "everyone":
		cfg.Everyone = strings.EqualFold(value, "true")
	case "preview":
		cfg.Preview = strings.EqualFold(value, "true")
	case "poll":
		cfg.Poll = strings.EqualFold(value, "true")
	case "schedule":
		t, ok := ResolveScheduleTime(value, now)
		if !ok {
			return fmt.Errorf("unresolvable schedule time %q", value)
		}
		cfg.ScheduleAt = &t
	case "color":
		c, err := parseColor(value)
		if err != nil {
			return err
		}
		cfg.Color = c
	case "button":
		parts := strings.SplitN(value, "|", 2)
		if len(parts) < 2 {
			return errors.New("button needs `Label | URL`")
		}
		cfg.Buttons = append(cfg.Buttons, Button{
			Label: strings.TrimSpace(parts[0]),
			URL:   strings.TrimSpace(parts[1]),
		})
	}
	return nil
}

func parseColor(value string) (int, error) {
	v := strings.ToLower(value)
	if c, ok := colorNames[v]; ok {
		return c, nil
	}
	if strings.HasPrefix(v, "0x") {
		c, err := strconv.ParseInt(v[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("bad hex color %q", value)
		}
		return int(c), nil
	}
	return 0, fmt.Errorf("unknown color %q", value)
}
