package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/puzzlesync/internal/engine"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(env(nil))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 60*time.Second, cfg.DedupTTL)
	assert.Equal(t, 5*time.Minute, cfg.SolveLockTTL)
	assert.Empty(t, cfg.RedisURL, "fallback transport is off by default")
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"PUZZLESYNC_PARTICIPANT":     "B",
		"PUZZLESYNC_OWNERS":          "gm, A ,,",
		"PUZZLESYNC_CHANNEL":         "table-1",
		"PUZZLESYNC_RELAY_URL":       "ws://relay:9000/ws",
		"PUZZLESYNC_LISTEN_ADDR":     ":9000",
		"PUZZLESYNC_REDIS_URL":       "redis://localhost:6379/0",
		"PUZZLESYNC_LEDGER":          "/tmp/ledger.db",
		"PUZZLESYNC_DEDUP_TTL":       "90s",
		"PUZZLESYNC_SOLVE_LOCK_TTL":  "10m",
		"PUZZLESYNC_PRESENCE_WINDOW": "30s",
		"PUZZLESYNC_LOG_FORMAT":      "json",
		"PUZZLESYNC_LOG_LEVEL":       "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "B", cfg.ParticipantID)
	assert.Equal(t, []string{"gm", "A"}, cfg.Owners)
	assert.Equal(t, "table-1", cfg.Channel)
	assert.Equal(t, "ws://relay:9000/ws", cfg.RelayURL)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "/tmp/ledger.db", cfg.LedgerPath)
	assert.Equal(t, 90*time.Second, cfg.DedupTTL)
	assert.Equal(t, 10*time.Minute, cfg.SolveLockTTL)
	assert.Equal(t, 30*time.Second, cfg.PresenceWindow)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_RejectsBadDurations(t *testing.T) {
	_, err := load(env(map[string]string{"PUZZLESYNC_DEDUP_TTL": "soon"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PUZZLESYNC_DEDUP_TTL")

	_, err = load(env(map[string]string{"PUZZLESYNC_SOLVE_LOCK_TTL": "-1m"}))
	assert.Error(t, err)
}

func TestLoad_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("PUZZLESYNC_PARTICIPANT", "C")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "C", cfg.ParticipantID)
}

func TestConfig_Members(t *testing.T) {
	cfg := Config{ParticipantID: "B", Owners: []string{"gm"}}
	assert.Equal(t, []engine.Member{{ID: "gm", Owner: true}, {ID: "B"}}, cfg.Members())
	assert.True(t, cfg.IsOwner("gm"))
	assert.False(t, cfg.IsOwner("B"))

	cfg.ParticipantID = "gm"
	assert.Equal(t, []engine.Member{{ID: "gm", Owner: true}}, cfg.Members())
}

func TestConfig_SlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, Config{LogLevel: in}.SlogLevel(), in)
	}
}
