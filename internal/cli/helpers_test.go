package cli

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/puzzlesync/internal/transport"
)

const vaultYAML = `
title: Vault
tiles:
  - id: sun
  - id: moon
  - id: star
solution: [star, sun, moon]
solvedMessage: The vault swings open.
`

func writeDefinition(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command and returns what it wrote to stdout.
func execute(ctx context.Context, args ...string) (string, error) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// startRelay serves a relay and returns it with its websocket url.
func startRelay(t *testing.T) (*transport.Relay, string) {
	t.Helper()
	relay := transport.NewRelay()
	srv := httptest.NewServer(relay)
	t.Cleanup(srv.Close)
	return relay, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}
