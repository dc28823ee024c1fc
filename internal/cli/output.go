package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// Process exit statuses.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the command ran and the answer is "no"
	ExitCommandError = 2 // the command could not run
)

// Code identifies a failure in JSON output and decides the exit status.
type Code string

const (
	CodeUsage    Code = "E_USAGE"    // bad arguments, flags or paths
	CodeConfig   Code = "E_CONFIG"   // config file, .env or TIPSYNC_* rejected
	CodeStore    Code = "E_STORE"    // tip store missing or unreadable
	CodeScenario Code = "E_SCENARIO" // scenario file missing or invalid
	CodeVersion  Code = "E_VERSION"  // tip store written by another version
	CodeResolve  Code = "E_RESOLVE"  // amount cannot be priced
	CodeExpect   Code = "E_EXPECT"   // unmet expectations or golden mismatch
)

var exitCodes = map[Code]int{
	CodeUsage:    ExitCommandError,
	CodeConfig:   ExitCommandError,
	CodeStore:    ExitCommandError,
	CodeScenario: ExitCommandError,
	CodeVersion:  ExitFailure,
	CodeResolve:  ExitFailure,
	CodeExpect:   ExitFailure,
}

// ExitCode returns the process status for c. Unknown codes fail with 1.
func (c Code) ExitCode() int {
	if n, ok := exitCodes[c]; ok {
		return n
	}
	return ExitFailure
}

// CommandError is a coded command failure.
type CommandError struct {
	Code    Code
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Failf builds a CommandError without a cause.
func Failf(code Code, format string, args ...any) *CommandError {
	return &CommandError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a CommandError around err.
func Wrap(code Code, message string, err error) *CommandError {
	return &CommandError{Code: code, Message: message, Err: err}
}

// GetExitCode maps an error returned by a command to a process status.
// Errors without a Code (cobra's own, for instance) fail with 1.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code.ExitCode()
	}
	return ExitFailure
}

// usageArgs reports positional-argument mistakes as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return Wrap(CodeUsage, "invalid arguments", err)
		}
		return nil
	}
}

// Envelope is the JSON shape of every command's output.
type Envelope[T any] struct {
	Status string     `json:"status"` // "ok" or "error"
	Data   T          `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failure inside an Envelope.
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Printer writes command results as text or as an Envelope.
type Printer struct {
	JSON bool
	Out  io.Writer
	Log  *slog.Logger // diagnostics; debug level only with --verbose
}

// Result writes data. JSON output wraps it in an ok Envelope; text output
// is whatever text writes.
func (p *Printer) Result(data any, text func(w io.Writer)) error {
	if p.JSON {
		return json.NewEncoder(p.Out).Encode(Envelope[any]{Status: "ok", Data: data})
	}
	text(p.Out)
	return nil
}

// Fail reports err on the output stream and returns it, so a command can
// end with `return p.Fail(err, details)`.
func (p *Printer) Fail(err *CommandError, details any) error {
	if p.JSON {
		body := &ErrorBody{Code: err.Code, Message: err.Error(), Details: details}
		if encErr := json.NewEncoder(p.Out).Encode(Envelope[any]{Status: "error", Error: body}); encErr != nil {
			return encErr
		}
		return err
	}
	fmt.Fprintf(p.Out, "Error [%s]: %s\n", err.Code, err.Error())
	if details != nil && p.Log != nil && p.Log.Enabled(context.Background(), slog.LevelDebug) {
		fmt.Fprintf(p.Out, "Details: %v\n", details)
	}
	return err
}
