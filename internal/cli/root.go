package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/puzzlesync/internal/config"
)

// RootOptions holds global flags and the loaded configuration for all
// commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	LogFormat string // "text" | "json"

	// Config starts from PUZZLESYNC_* and is overridden by flags.
	Config config.Config
}

// ValidFormats defines the allowed output and log formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the puzzlesync CLI.
func NewRootCommand() *cobra.Command {
	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = config.Default()
	}
	opts := &RootOptions{Config: cfg}

	cmd := &cobra.Command{
		Use:   "puzzlesync",
		Short: "Shared puzzle boards kept in sync between participants",
		Long: `puzzlesync opens ordering puzzles to a group of participants and keeps
every participant's board in sync over a WebSocket relay, with Redis
pub/sub as an optional fallback path. The owner who opened a session
runs its solved side effect exactly once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", cfgErr)
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !isValidFormat(opts.LogFormat) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid log format %q: must be one of %v", opts.LogFormat, ValidFormats))
			}
			slog.SetDefault(opts.logger(cmd.ErrOrStderr()))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", cfg.LogFormat, "log format on stderr (json|text)")

	cmd.AddCommand(NewRelayCommand(opts))
	cmd.AddCommand(NewOpenCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewSolvesCommand(opts))

	return cmd
}

// logger builds the process logger. Logs always go to w so JSON results
// on stdout stay parseable.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := o.Config.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if o.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// addPeerFlags binds the flags shared by commands that join a channel.
func addPeerFlags(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().StringVar(&cfg.ParticipantID, "participant", cfg.ParticipantID, "local participant id (PUZZLESYNC_PARTICIPANT)")
	cmd.Flags().StringSliceVar(&cfg.Owners, "owners", cfg.Owners, "participant ids holding the owner role (PUZZLESYNC_OWNERS)")
	cmd.Flags().StringVar(&cfg.Channel, "channel", cfg.Channel, "channel shared by the participants (PUZZLESYNC_CHANNEL)")
	cmd.Flags().StringVar(&cfg.RelayURL, "relay", cfg.RelayURL, "relay websocket url (PUZZLESYNC_RELAY_URL)")
	cmd.Flags().StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "redis url for the fallback transport and shared solve lock (PUZZLESYNC_REDIS_URL)")
	cmd.Flags().DurationVar(&cfg.DedupTTL, "dedup-ttl", cfg.DedupTTL, "how long a broadcast id is remembered (PUZZLESYNC_DEDUP_TTL)")
	cmd.Flags().DurationVar(&cfg.SolveLockTTL, "solve-lock-ttl", cfg.SolveLockTTL, "how long a solved session stays locked (PUZZLESYNC_SOLVE_LOCK_TTL)")
	cmd.Flags().DurationVar(&cfg.PresenceWindow, "presence-window", cfg.PresenceWindow, "how long a participant counts as reachable (PUZZLESYNC_PRESENCE_WINDOW)")
}
