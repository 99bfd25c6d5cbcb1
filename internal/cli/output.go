package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Invalid definition, failed solve side effect
	ExitCommandError = 2 // Bad flags, unreachable relay or redis, unreadable ledger
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric           = "E001"
	ErrCodeInvalidDefinition = "E100"
	ErrCodeTransport         = "E200"
	ErrCodeLedger            = "E300"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Nil is success and
// any other error is ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Texter is implemented by results that render themselves for text
// output.
type Texter interface {
	Text() string
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON shape of a command result.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// CLIEvent is one line of the stream written by long-running commands.
type CLIEvent struct {
	Event string `json:"event"`
	At    int64  `json:"at"` // unix millis
	Data  any    `json:"data,omitempty"`
}

// Success writes a command result.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if t, ok := data.(Texter); ok {
		_, err := fmt.Fprintln(f.Writer, t.Text())
		return err
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a command failure.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Event writes one streamed event. JSON output is one object per line so
// the stream can be piped into jq.
func (f *OutputFormatter) Event(name string, at time.Time, data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIEvent{Event: name, At: at.UnixMilli(), Data: data})
	}
	if t, ok := data.(Texter); ok {
		_, err := fmt.Fprintf(f.Writer, "%s %s %s\n", at.UTC().Format(time.RFC3339), name, t.Text())
		return err
	}
	_, err := fmt.Fprintf(f.Writer, "%s %s %v\n", at.UTC().Format(time.RFC3339), name, data)
	return err
}

// VerboseLog writes to the diagnostic writer when verbose is set, keeping
// JSON output on Writer parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter, or Writer when unset.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
