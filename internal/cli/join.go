package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/puzzlesync/internal/board"
)

// JoinOptions holds flags for the join command.
type JoinOptions struct {
	*RootOptions
	UntilSolved bool
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JoinOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a channel and follow the sessions opened on it",
		Long: `Join a channel as a participant. Every session an owner opens for this
participant gets a local board that follows the other participants'
moves; board changes are streamed to stdout.

Example:
  puzzlesync join --participant alice --owners gm
  puzzlesync join --participant alice --format json --until-solved`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(opts, cmd)
		},
	}

	addPeerFlags(cmd, &rootOpts.Config)
	cmd.Flags().BoolVar(&opts.UntilSolved, "until-solved", false, "exit once a board shows solved")

	return cmd
}

func runJoin(opts *JoinOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events := newEventStream(formatter, nil)
	observe := events.observer()
	observer := observe
	if opts.UntilSolved {
		observer = func(b *board.Board, ch board.Change) {
			observe(b, ch)
			if ch.Solved {
				cancel()
			}
		}
	}

	// The ledger belongs to the process that opened the session.
	cfg := opts.Config
	cfg.LedgerPath = ""
	p, err := connectPeer(ctx, cfg, peerOptions{
		Sink:     events.solvedSink(),
		Observer: observer,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	formatter.VerboseLog("Joined channel %s as %s", cfg.Channel, cfg.ParticipantID)
	if err := p.Run(ctx); err != nil {
		return WrapExitError(ExitCommandError, "connection lost", err)
	}
	return nil
}
