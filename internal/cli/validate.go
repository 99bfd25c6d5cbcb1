package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/puzzlesync/internal/puzzle"
)

// ValidationResult is the output of the validate command.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Path       string            `json:"path"`
	Definition puzzle.Definition `json:"definition"`
}

// Text renders the normalized definition for terminals.
func (r ValidationResult) Text() string {
	d := r.Definition
	var b strings.Builder
	fmt.Fprintf(&b, "%s: valid\n", r.Path)
	fmt.Fprintf(&b, "  title:    %s\n", d.Title)
	fmt.Fprintf(&b, "  tiles:    %d\n", len(d.Tiles))
	fmt.Fprintf(&b, "  columns:  %d\n", d.Columns)
	fmt.Fprintf(&b, "  shuffle:  %t\n", d.Shuffle)
	fmt.Fprintf(&b, "  solution: %s", strings.Join(d.Solution, ", "))
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definition>",
		Short: "Validate and normalize a puzzle definition",
		Long: `Load a puzzle definition (.json, .yaml, .yml or .cue), check it against
the puzzle schema, apply defaults and print the normalized definition.

Example:
  puzzlesync validate ./puzzles/vault.yaml
  puzzlesync validate --format json ./puzzles/vault.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("Loading %s", path)

	def, err := puzzle.LoadFile(path)
	if err != nil {
		if outErr := formatter.Error(ErrCodeInvalidDefinition, err.Error(), map[string]string{"path": path}); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "invalid definition", err)
	}

	formatter.VerboseLog("Definition has %d tile(s)", len(def.Tiles))
	return formatter.Success(ValidationResult{Valid: true, Path: path, Definition: def})
}
