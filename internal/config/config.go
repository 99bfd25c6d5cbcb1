// Package config loads process settings from PUZZLESYNC_* environment
// variables. Command-line flags override the loaded values.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/roach88/puzzlesync/internal/engine"
)

// Config holds the settings shared by every command.
type Config struct {
	ParticipantID string
	// Owners lists participant ids that hold the owner role.
	Owners  []string
	Channel string

	RelayURL   string // primary transport, ws://host:port/ws
	ListenAddr string // relay listen address
	RedisURL   string // fallback transport and shared state; empty disables
	LedgerPath string // sqlite solve ledger; empty disables

	DedupTTL       time.Duration
	SolveLockTTL   time.Duration
	PresenceWindow time.Duration

	LogFormat string // "text" (default) or "json"
	LogLevel  string // "debug", "info" (default), "warn", "error"
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Channel:        "puzzle",
		RelayURL:       "ws://localhost:8790/ws",
		ListenAddr:     ":8790",
		LedgerPath:     "./data/solves.db",
		DedupTTL:       engine.DefaultDedupTTL,
		SolveLockTTL:   engine.DefaultSolveLockTTL,
		PresenceWindow: engine.DefaultPresenceWindow,
		LogFormat:      "text",
		LogLevel:       "info",
	}
}

// Load reads the environment on top of Default. Malformed durations are
// errors rather than silently ignored.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if v := getenv("PUZZLESYNC_PARTICIPANT"); v != "" {
		cfg.ParticipantID = v
	}
	if v := getenv("PUZZLESYNC_OWNERS"); v != "" {
		cfg.Owners = SplitList(v)
	}
	if v := getenv("PUZZLESYNC_CHANNEL"); v != "" {
		cfg.Channel = v
	}
	if v := getenv("PUZZLESYNC_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := getenv("PUZZLESYNC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("PUZZLESYNC_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := getenv("PUZZLESYNC_LEDGER"); v != "" {
		cfg.LedgerPath = v
	}
	if v := getenv("PUZZLESYNC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv("PUZZLESYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PUZZLESYNC_DEDUP_TTL", &cfg.DedupTTL},
		{"PUZZLESYNC_SOLVE_LOCK_TTL", &cfg.SolveLockTTL},
		{"PUZZLESYNC_PRESENCE_WINDOW", &cfg.PresenceWindow},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", d.key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s: must be positive, got %s", d.key, v)
		}
		*d.dst = parsed
	}
	return cfg, nil
}

// IsOwner reports whether id is listed in Owners.
func (c Config) IsOwner(id string) bool {
	return slices.Contains(c.Owners, id)
}

// Members returns the roster seeded from Owners plus the local
// participant.
func (c Config) Members() []engine.Member {
	members := make([]engine.Member, 0, len(c.Owners)+1)
	for _, o := range c.Owners {
		members = append(members, engine.Member{ID: o, Owner: true})
	}
	if c.ParticipantID != "" && !c.IsOwner(c.ParticipantID) {
		members = append(members, engine.Member{ID: c.ParticipantID})
	}
	return members
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
