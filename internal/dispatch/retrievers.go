package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"campaignvideo/internal/core/domain"
	"campaignvideo/internal/core/ports"
	"campaignvideo/internal/pacing"
)

const (
	defaultExtension = ".mp4"
	chunkSize        = 8 * 1024
	partSuffix       = ".part"

	DefaultToolTimeout     = 5 * time.Minute
	DefaultTransferTimeout = 10 * time.Minute
	DefaultMaxHeight       = 720
)

// DelegatedTool hands hosted-player URLs to the external tool.
type DelegatedTool struct {
	runner    ports.ToolRunner
	maxHeight int
	timeout   time.Duration
}

// NewDelegatedTool creates the tool-backed retriever.
func NewDelegatedTool(runner ports.ToolRunner, maxHeight int, timeout time.Duration) *DelegatedTool {
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &DelegatedTool{runner: runner, maxHeight: maxHeight, timeout: timeout}
}

// Retrieve implements Retriever. The tool picks the extension, so the
// returned path is the first finished file matching the stem, or the output
// template when none can be found.
func (t *DelegatedTool) Retrieve(ctx context.Context, ref domain.VideoReference, targetDir, stem string) (string, error) {
	template := filepath.Join(targetDir, stem+".%(ext)s")
	if err := t.runner.Retrieve(ctx, ref.URL, template, t.maxHeight, t.timeout); err != nil {
		return "", err
	}

	matches, _ := filepath.Glob(filepath.Join(targetDir, globEscape(stem)+".*"))
	for _, m := range matches {
		if !strings.HasSuffix(m, partSuffix) && !strings.HasSuffix(m, ".ytdl") {
			return m, nil
		}
	}
	return template, nil
}

// DirectStream transfers a file over HTTP, first with the primary client and
// then with the fallback.
type DirectStream struct {
	primary  ports.Downloader
	fallback ports.Downloader
	limiter  *pacing.HostLimiter
	timeout  time.Duration
	log      *logrus.Entry
}

// NewDirectStream creates the streaming retriever. fallback may be nil.
func NewDirectStream(primary, fallback ports.Downloader, limiter *pacing.HostLimiter, timeout time.Duration, log *logrus.Entry) *DirectStream {
	if timeout <= 0 {
		timeout = DefaultTransferTimeout
	}
	return &DirectStream{
		primary:  primary,
		fallback: fallback,
		limiter:  limiter,
		timeout:  timeout,
		log:      log,
	}
}

// Retrieve implements Retriever. An existing non-empty destination counts as
// success without any transfer.
func (s *DirectStream) Retrieve(ctx context.Context, ref domain.VideoReference, targetDir, stem string) (string, error) {
	dest := filepath.Join(targetDir, stem+Extension(ref.URL))
	if nonEmpty(dest) {
		s.log.WithField("path", dest).Debug("Artifact already present")
		return dest, nil
	}

	if err := s.limiter.Wait(ctx, ref.URL); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.transfer(ctx, s.primary, ref.URL, dest)
	if err != nil && s.fallback != nil && ctx.Err() == nil {
		s.log.WithError(err).WithField("url", ref.URL).Debug("Primary transfer failed, using fallback client")
		err = s.transfer(ctx, s.fallback, ref.URL, dest)
	}
	if err != nil {
		return "", err
	}
	if !nonEmpty(dest) {
		return "", errEmptyArtifact(dest)
	}
	return dest, nil
}

// transfer streams into a temp file in the destination directory and renames
// it into place once complete.
func (s *DirectStream) transfer(ctx context.Context, client ports.Downloader, fileURL, dest string) error {
	body, err := client.Download(ctx, fileURL)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*"+partSuffix)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", dest, err)
	}
	tmpPath := tmp.Name()

	n, err := io.CopyBuffer(tmp, body, make([]byte, chunkSize))
	if err == nil && n == 0 {
		err = errEmptyArtifact(dest)
	}
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", dest, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename into %s: %w", dest, err)
	}
	return nil
}

// Extension returns the lower-cased extension of the URL path, or .mp4.
func Extension(fileURL string) string {
	p := fileURL
	if u, err := url.Parse(fileURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" || ext == "." || len(ext) > 6 {
		return defaultExtension
	}
	return ext
}

func errEmptyArtifact(path string) error {
	return fmt.Errorf("artifact %s is missing or empty", path)
}

func nonEmpty(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}
