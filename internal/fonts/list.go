// Package fonts discovers installed fonts and inspects font files.
package fonts

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"go.trai.ch/zerr"
)

// DefaultListCommand is the font-listing tool run by List
const DefaultListCommand = "fc-list"

// ErrListFailed is returned when the font-listing command fails
var ErrListFailed = zerr.New("font listing command failed")

// Lister runs the system font-listing command. Its output is passed through
// verbatim and never cached.
type Lister struct {
	command string
	args    []string

	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewLister creates a lister for command and args. An empty command means
// DefaultListCommand.
func NewLister(command string, args []string) *Lister {
	if command == "" {
		command = DefaultListCommand
	}

	return &Lister{
		command:     command,
		args:        args,
		execCommand: exec.CommandContext,
	}
}

// List runs the command and returns its standard output
func (l *Lister) List(ctx context.Context) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := l.execCommand(ctx, l.command, l.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		wrapped := zerr.With(zerr.Wrap(ErrListFailed, err.Error()), "command", l.command)

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			wrapped = zerr.With(wrapped, "exit_code", exitErr.ExitCode())
		}

		return nil, zerr.With(wrapped, "stderr", stderr.String())
	}

	return stdout.Bytes(), nil
}
