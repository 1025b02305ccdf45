package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// CLIConfig configures a command-line adapter.
type CLIConfig struct {
	// Command is the executable to spawn.
	Command string

	// Args are fixed arguments placed before the prompt.
	Args []string

	// PromptViaStdin pipes the prompt to stdin instead of appending it
	// as the final argument.
	PromptViaStdin bool

	// WorkingDir is the directory the command runs in. Empty uses the
	// process working directory.
	WorkingDir string

	// Logger for structured logging. Defaults to zap.NewNop().
	Logger *zap.Logger
}

// CLIAdapter drives a local command-line agent as a subprocess.
//
// The context deadline bounds the whole run; a killed-by-deadline process
// is reported as transient so the invoker can retry or fall back.
type CLIAdapter struct {
	cfg    CLIConfig
	logger *zap.Logger
}

// NewCLIAdapter creates an adapter for the given command.
func NewCLIAdapter(cfg CLIConfig) (*CLIAdapter, error) {
	if cfg.Command == "" {
		return nil, errors.New("cli adapter: command is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CLIAdapter{cfg: cfg, logger: logger}, nil
}

// Execute implements Adapter.
func (a *CLIAdapter) Execute(ctx context.Context, payload Payload) (*Outcome, error) {
	args := a.cfg.Args
	if !a.cfg.PromptViaStdin {
		args = append(append([]string(nil), a.cfg.Args...), payload.Prompt)
	}

	cmd := exec.CommandContext(ctx, a.cfg.Command, args...)
	cmd.Dir = a.cfg.WorkingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if a.cfg.PromptViaStdin {
		cmd.Stdin = bytes.NewBufferString(payload.Prompt)
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		// Deadline kills surface as the context error, not the exec error.
		if ctx.Err() != nil {
			a.logger.Warn("cli agent timed out",
				zap.String("command", a.cfg.Command),
				zap.String("task_id", payload.TaskID),
				zap.Duration("elapsed", elapsed))
			return nil, Transient(fmt.Errorf("cli agent %s: %w", a.cfg.Command, ctx.Err()))
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			a.logger.Warn("cli agent exited nonzero",
				zap.String("command", a.cfg.Command),
				zap.Int("exit_code", exitErr.ExitCode()),
				zap.String("stderr", truncate(stderr.String(), 512)))
			return nil, Terminal(fmt.Errorf("cli agent %s exited %d: %s",
				a.cfg.Command, exitErr.ExitCode(), truncate(stderr.String(), 512)))
		}

		// Spawn failure (not found, permission). The binary will not
		// appear mid-run, so retrying is pointless.
		return nil, Terminal(fmt.Errorf("cli agent %s: %w", a.cfg.Command, err))
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	return &Outcome{
		Output:   stdout.String(),
		Duration: elapsed,
		Metadata: map[string]string{
			"adapter":   "cli",
			"command":   a.cfg.Command,
			"exit_code": strconv.Itoa(exitCode),
		},
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
