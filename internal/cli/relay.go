package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/puzzlesync/internal/transport"
)

// RelayOptions holds flags for the relay command.
type RelayOptions struct {
	*RootOptions
	Listen string

	// ready, when set, receives the bound address once the server accepts
	// connections.
	ready chan<- string
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the WebSocket relay participants connect to",
		Long: `Run the WebSocket relay that forwards every frame a participant sends
to the other participants of the same channel.

Participants connect to ws://<listen>/ws?channel=<name>&participant=<id>.
GET /healthz reports liveness.

Example:
  puzzlesync relay --listen :8790`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", rootOpts.Config.ListenAddr, "listen address (PUZZLESYNC_LISTEN_ADDR)")

	return cmd
}

func runRelay(opts *RelayOptions, cmd *cobra.Command) error {
	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	relay := transport.NewRelay()
	mux := http.NewServeMux()
	mux.Handle("/ws", relay)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	addr := ln.Addr().String()
	slog.Info("relay listening", "addr", addr)
	opts.formatter(cmd).VerboseLog("Relay listening on %s", addr)
	if opts.ready != nil {
		opts.ready <- addr
	}

	select {
	case <-ctx.Done():
		slog.Info("relay shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "relay stopped", err)
		}
		return nil
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "relay shutdown", err)
	}
	return nil
}
