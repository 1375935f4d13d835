package textextract

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"time"
)

// maxStderr bounds how much of a tool's stderr is kept for error messages.
const maxStderr = 8 << 10

// Runner executes an external OCR tool and returns its captured output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	log := r.logger
	if log == nil {
		log = slog.Default()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	began := time.Now()
	err := cmd.Run()
	took := time.Since(began).Milliseconds()

	errOut := stderr.Bytes()
	if len(errOut) > maxStderr {
		errOut = errOut[:maxStderr]
	}
	if err != nil {
		log.Warn("textextract.tool.failed", "tool", name, "argc", len(args), "elapsed_ms", took, "error", err)
		return stdout.Bytes(), errOut, err
	}
	log.Debug("textextract.tool.ok", "tool", name, "elapsed_ms", took, "stdout_bytes", stdout.Len())
	return stdout.Bytes(), errOut, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
