package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/puzzlesync/internal/board"
	"github.com/roach88/puzzlesync/internal/engine"
	"github.com/roach88/puzzlesync/internal/puzzle"
	"github.com/roach88/puzzlesync/internal/store"
	"github.com/roach88/puzzlesync/internal/wire"
)

// OpenOptions holds flags for the open command.
type OpenOptions struct {
	*RootOptions
	SessionID     string
	Targets       []string
	IncludeOwners bool
	Once          bool
}

// OpenView is the streamed form of an opened session.
type OpenView struct {
	SessionID   string        `json:"sessionId"`
	BroadcastID string        `json:"broadcastId"`
	Title       string        `json:"title"`
	Envelope    wire.Envelope `json:"envelope"`
}

// Text renders the opened session on one line.
func (v OpenView) Text() string {
	return fmt.Sprintf("session=%s broadcast=%s title=%q", v.SessionID, v.BroadcastID, v.Title)
}

// NewOpenCommand creates the open command.
func NewOpenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OpenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "open <definition>",
		Short: "Open a puzzle session as owner and wait for solves",
		Long: `Open a puzzle session as owner. The definition is loaded and normalized,
broadcast to the other participants of the channel, and the command then
stays connected, streaming board changes and running the solved side
effect exactly once per session. Solves are recorded in the ledger.

Example:
  puzzlesync open --participant gm --relay ws://localhost:8790/ws ./vault.yaml
  puzzlesync open --participant gm --target alice,bob --once ./vault.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpen(opts, args[0], cmd)
		},
	}

	addPeerFlags(cmd, &rootOpts.Config)
	cmd.Flags().StringVar(&rootOpts.Config.LedgerPath, "ledger", rootOpts.Config.LedgerPath, "sqlite solve ledger, empty disables (PUZZLESYNC_LEDGER)")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "session id to reuse; generated when empty")
	cmd.Flags().StringSliceVar(&opts.Targets, "target", nil, "participant ids that should open the board; everyone when empty")
	cmd.Flags().BoolVar(&opts.IncludeOwners, "include-owners", false, "let other owners open the board too")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "exit after the first solve")

	return cmd
}

func runOpen(opts *OpenOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	def, err := puzzle.LoadFile(path)
	if err != nil {
		if outErr := formatter.Error(ErrCodeInvalidDefinition, err.Error(), map[string]string{"path": path}); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "invalid definition", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events := newEventStream(formatter, nil)
	var settled func(engine.SolvedEvent)
	if opts.Once {
		settled = func(engine.SolvedEvent) { cancel() }
	}

	p, err := connectPeer(ctx, opts.Config, peerOptions{
		Owner:    true,
		Sink:     events.solvedSink(),
		Observer: events.observer(),
		Settled:  settled,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	runErr := make(chan error, 1)
	go func() {
		runErr <- p.Run(ctx)
	}()

	b, env, err := board.Open(ctx, p.coord, def, engine.OpenOptions{
		SessionID:     opts.SessionID,
		TargetUserIDs: opts.Targets,
		IncludeOwners: opts.IncludeOwners,
	}, p.rng, events.observer())
	if err != nil {
		cancel()
		<-runErr
		return WrapExitError(ExitFailure, "failed to open session", err)
	}
	defer b.Close()

	if p.ledger != nil {
		if err := p.ledger.RecordOpen(ctx, store.Session{
			SessionID:   env.SessionID,
			BroadcastID: env.BroadcastID,
			Title:       def.Title,
			Definition:  def,
			OpenedAt:    time.UnixMilli(env.TS),
		}); err != nil {
			slog.Warn("ledger open write failed", "session", env.SessionID, "error", err)
		}
	}

	events.emit("open", OpenView{
		SessionID:   env.SessionID,
		BroadcastID: env.BroadcastID,
		Title:       def.Title,
		Envelope:    env,
	})

	if err := <-runErr; err != nil {
		return WrapExitError(ExitCommandError, "connection lost", err)
	}
	return nil
}
