package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/puzzlesync/internal/store"
)

// SolvesOptions holds flags for the solves command.
type SolvesOptions struct {
	*RootOptions
	SessionID string
	Sessions  bool
}

// SolveRow is one listed solve.
type SolveRow struct {
	ID        int64    `json:"id"`
	SessionID string   `json:"sessionId"`
	Title     string   `json:"title"`
	SolvedBy  string   `json:"solvedBy"`
	SolvedAt  int64    `json:"solvedAt"`
	Slots     []string `json:"slots"`
	Error     string   `json:"error,omitempty"`
}

// SessionRow is one listed session.
type SessionRow struct {
	SessionID   string `json:"sessionId"`
	BroadcastID string `json:"broadcastId"`
	Title       string `json:"title"`
	OpenedAt    int64  `json:"openedAt"`
}

// SolvesResult is the output of the solves command.
type SolvesResult struct {
	Solves   []SolveRow   `json:"solves,omitempty"`
	Sessions []SessionRow `json:"sessions,omitempty"`
}

// Text renders one line per row.
func (r SolvesResult) Text() string {
	var b strings.Builder
	for _, s := range r.Sessions {
		fmt.Fprintf(&b, "%s  %s  %q\n", millis(s.OpenedAt), s.SessionID, s.Title)
	}
	for _, s := range r.Solves {
		status := "ok"
		if s.Error != "" {
			status = "error: " + s.Error
		}
		fmt.Fprintf(&b, "%s  %s  %q  by %s  %s\n", millis(s.SolvedAt), s.SessionID, s.Title, s.SolvedBy, status)
	}
	if b.Len() == 0 {
		return "no entries"
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func millis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// NewSolvesCommand creates the solves command.
func NewSolvesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SolvesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "solves",
		Short: "List solves recorded in the ledger",
		Long: `List the solved side effects recorded by open, oldest first. Failed side
effects are listed with their error.

Example:
  puzzlesync solves --ledger ./data/solves.db
  puzzlesync solves --session 0190c3c8-... --format json
  puzzlesync solves --sessions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolves(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&rootOpts.Config.LedgerPath, "ledger", rootOpts.Config.LedgerPath, "sqlite solve ledger (PUZZLESYNC_LEDGER)")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "only list solves of this session")
	cmd.Flags().BoolVar(&opts.Sessions, "sessions", false, "list opened sessions instead of solves")

	return cmd
}

func runSolves(opts *SolvesOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	path := opts.Config.LedgerPath

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			_ = formatter.Error(ErrCodeLedger, "ledger not found", map[string]string{"path": path})
			return NewExitError(ExitCommandError, fmt.Sprintf("ledger not found: %s", path))
		}
		return WrapExitError(ExitCommandError, "failed to stat ledger", err)
	}

	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	var result SolvesResult

	if opts.Sessions {
		sessions, err := st.Sessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read sessions", err)
		}
		result.Sessions = make([]SessionRow, 0, len(sessions))
		for _, s := range sessions {
			result.Sessions = append(result.Sessions, SessionRow{
				SessionID:   s.SessionID,
				BroadcastID: s.BroadcastID,
				Title:       s.Title,
				OpenedAt:    s.OpenedAt.UnixMilli(),
			})
		}
		return formatter.Success(result)
	}

	solves, err := st.Solves(ctx, opts.SessionID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read solves", err)
	}
	result.Solves = make([]SolveRow, 0, len(solves))
	for _, s := range solves {
		result.Solves = append(result.Solves, SolveRow{
			ID:        s.ID,
			SessionID: s.SessionID,
			Title:     s.Title,
			SolvedBy:  s.SolvedBy,
			SolvedAt:  s.SolvedAt.UnixMilli(),
			Slots:     s.State.SlotAssignment,
			Error:     s.Error,
		})
	}
	formatter.VerboseLog("Read %d solve(s) from %s", len(solves), path)
	return formatter.Success(result)
}
