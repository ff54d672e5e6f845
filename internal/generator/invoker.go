// Package generator runs the external glyph-atlas generator.
package generator

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"github.com/Norgate-AV/glyphd/internal/cache"
	"github.com/Norgate-AV/glyphd/internal/codes"
)

// ErrGenerationFailed is matched by every *GenerationError
var ErrGenerationFailed = zerr.New("atlas generation failed")

// DefaultSubcommand is passed before the normalized arguments
const DefaultSubcommand = "generate"

// GenerationError describes a generator run that did not succeed. ExitCode
// is -1 when the process could not be started.
type GenerationError struct {
	ExitCode    int
	Description string
	Stdout      string
	Stderr      string
	Cause       error
}

func (e *GenerationError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: %s: %v", ErrGenerationFailed.Error(), e.Description, e.Cause)
	}

	return fmt.Sprintf("%s (exit code %d): %s", ErrGenerationFailed.Error(), e.ExitCode, e.Description)
}

// Unwrap lets errors.Is match ErrGenerationFailed and the start failure
func (e *GenerationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrGenerationFailed, e.Cause}
	}

	return []error{ErrGenerationFailed}
}

// Result is the outcome of a successful run
type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Duration  time.Duration
	Artifacts []string
}

// Options configures an Invoker
type Options struct {
	Path       string
	Subcommand string
	WorkDir    string
	Logger     *slog.Logger
}

// Invoker builds and runs generator commands
type Invoker struct {
	path       string
	subcommand string
	workDir    string
	logger     *slog.Logger

	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewInvoker creates a new invoker
func NewInvoker(opts Options) *Invoker {
	if opts.Subcommand == "" {
		opts.Subcommand = DefaultSubcommand
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Invoker{
		path:        opts.Path,
		subcommand:  opts.Subcommand,
		workDir:     opts.WorkDir,
		logger:      opts.Logger,
		execCommand: exec.CommandContext,
	}
}

// BuildCommandArgs returns the full argument list for a build into dir.
// The output arguments come last and never take part in the cache key.
func (iv *Invoker) BuildCommandArgs(args []string, dir string) []string {
	cmdArgs := make([]string, 0, len(args)+5)

	if iv.subcommand != "" {
		cmdArgs = append(cmdArgs, iv.subcommand)
	}

	cmdArgs = append(cmdArgs, args...)
	cmdArgs = append(cmdArgs,
		"--image", filepath.Join(dir, cache.ImageFile),
		"--fnt", filepath.Join(dir, cache.MetricsFile),
	)

	return cmdArgs
}

// Invoke runs the generator with the normalized args, writing artifacts into
// dir. It blocks until the process exits; ctx only carries values, callers
// detach it from request cancellation.
func (iv *Invoker) Invoke(ctx context.Context, args []string, dir string) (*Result, error) {
	cmdArgs := iv.BuildCommandArgs(args, dir)

	var stdout, stderr bytes.Buffer

	cmd := iv.execCommand(ctx, iv.path, cmdArgs...)
	cmd.Dir = iv.workDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	iv.logger.DebugContext(ctx, "running generator",
		slog.String("path", iv.path),
		slog.String("workdir", iv.workDir),
		slog.String("command", strings.Join(cmdArgs, " ")),
	)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	iv.logOutput(ctx, "stdout", stdout.String())
	iv.logOutput(ctx, "stderr", stderr.String())

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, &GenerationError{
				ExitCode:    -1,
				Description: codes.GetErrorMessage(-1),
				Stdout:      stdout.String(),
				Stderr:      stderr.String(),
				Cause:       runErr,
			}
		}

		code := exitErr.ExitCode()

		return nil, &GenerationError{
			ExitCode:    code,
			Description: codes.GetErrorMessage(code),
			Stdout:      stdout.String(),
			Stderr:      stderr.String(),
		}
	}

	artifacts, err := cache.CollectOutputs(dir)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to collect generator outputs")
	}

	return &Result{
		ExitCode:  0,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  duration,
		Artifacts: artifacts,
	}, nil
}

func (iv *Invoker) logOutput(ctx context.Context, stream, output string) {
	if !iv.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		iv.logger.DebugContext(ctx, "generator output",
			slog.String("stream", stream),
			slog.String("line", scanner.Text()),
		)
	}
}
