package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single invocation when the caller passes zero.
const DefaultTimeout = 5 * time.Minute

// Runner implements ports.ToolRunner with a local yt-dlp binary.
type Runner struct {
	binaryPath string
}

// NewRunner creates a Runner. An empty path looks for a yt-dlp binary in the
// working directory first and then falls back to PATH.
func NewRunner(path string) *Runner {
	if path != "" {
		return &Runner{binaryPath: path}
	}
	local := "yt-dlp"
	if runtime.GOOS == "windows" {
		local = "yt-dlp.exe"
	}
	if _, err := os.Stat(local); err == nil {
		return &Runner{binaryPath: "." + string(os.PathSeparator) + local}
	}
	return &Runner{binaryPath: "yt-dlp"}
}

// BinaryPath returns the resolved executable.
func (r *Runner) BinaryPath() string { return r.binaryPath }

// Available reports whether the executable can be found.
func (r *Runner) Available() bool {
	_, err := exec.LookPath(r.binaryPath)
	return err == nil
}

// Retrieve downloads videoURL into outputTemplate, capped at maxHeight.
func (r *Runner) Retrieve(ctx context.Context, videoURL, outputTemplate string, maxHeight int, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.binaryPath, buildArgs(videoURL, outputTemplate, maxHeight)...)
	cmd.WaitDelay = 2 * time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("yt-dlp timed out after %s", timeout)
	}
	return fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, tail(stderr.String(), 512))
}

func buildArgs(videoURL, outputTemplate string, maxHeight int) []string {
	format := "best"
	if maxHeight > 0 {
		format = "best[height<=" + strconv.Itoa(maxHeight) + "]"
	}
	return []string{
		"--no-check-certificates",
		"--ignore-errors",
		"--quiet",
		"-f", format,
		"-o", outputTemplate,
		videoURL,
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
