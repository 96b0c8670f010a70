package localstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"campaignvideo/internal/core/domain"
)

const (
	logsDir        = "logs"
	checkpointFile = "progress.json"
	statsPrefix    = "batch_"
	statsLayout    = "20060102_150405"
)

// videoExtensions are the artifact suffixes counted by Inventory.
var videoExtensions = map[string]bool{
	".mp4": true, ".webm": true, ".mov": true, ".avi": true, ".mkv": true, ".flv": true,
}

// LocalStorage implements ports.Storage for the local filesystem.
type LocalStorage struct {
	BaseDir string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

// Root returns the download directory.
func (s *LocalStorage) Root() string { return s.BaseDir }

// Init creates the download and logs directories.
func (s *LocalStorage) Init() error {
	path := filepath.Join(s.BaseDir, logsDir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// ProjectDir creates the artifact directory for one project.
func (s *LocalStorage) ProjectDir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid project directory name %q", name)
	}
	path := filepath.Join(s.BaseDir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create project directory %s: %w", path, err)
	}
	return path, nil
}

// StatsPath returns the report file for a run started at the stats' StartedAt.
func (s *LocalStorage) StatsPath(stats *domain.BatchStats) string {
	name := statsPrefix + stats.StartedAt.Format(statsLayout) + ".json"
	return filepath.Join(s.BaseDir, logsDir, name)
}

// SaveStats overwrites the run's report file. It ignores ctx so that an
// interrupted run can still record its final snapshot.
func (s *LocalStorage) SaveStats(_ context.Context, stats *domain.BatchStats) error {
	return WriteJSON(s.StatsPath(stats), stats)
}

// LatestStats reads the most recent report. Report names sort by start time.
func (s *LocalStorage) LatestStats(_ context.Context) (domain.BatchStats, error) {
	var stats domain.BatchStats
	matches, err := filepath.Glob(filepath.Join(s.BaseDir, logsDir, statsPrefix+"*.json"))
	if err != nil {
		return stats, fmt.Errorf("failed to list reports: %w", err)
	}
	if len(matches) == 0 {
		return stats, domain.ErrNoStats
	}
	sort.Strings(matches)
	if err := ReadJSON(matches[len(matches)-1], &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// SaveCheckpoint overwrites the checkpoint file.
func (s *LocalStorage) SaveCheckpoint(_ context.Context, cp domain.Checkpoint) error {
	return WriteJSON(s.checkpointPath(), cp)
}

// LoadCheckpoint returns the persisted checkpoint or domain.ErrNoCheckpoint.
func (s *LocalStorage) LoadCheckpoint(_ context.Context) (domain.Checkpoint, error) {
	var cp domain.Checkpoint
	err := ReadJSON(s.checkpointPath(), &cp)
	if errors.Is(err, fs.ErrNotExist) {
		return cp, domain.ErrNoCheckpoint
	}
	return cp, err
}

func (s *LocalStorage) checkpointPath() string {
	return filepath.Join(s.BaseDir, logsDir, checkpointFile)
}

// ProjectSummary describes one project directory.
type ProjectSummary struct {
	Name   string
	Videos int
	Bytes  int64
}

// VideoFile is one finished artifact.
type VideoFile struct {
	Project string
	Name    string
	Path    string
	Size    int64
}

// Inventory is a snapshot of everything downloaded so far.
type Inventory struct {
	Projects []ProjectSummary
	Videos   []VideoFile
	// LooseVideos are artifacts stored directly in the root (primary mode).
	LooseVideos int
	TotalVideos int
	VideoBytes  int64
	// TotalBytes includes logs and unfinished transfers.
	TotalBytes int64
}

// Inventory walks the download directory. Hidden files (temp files and
// partial transfers) are never counted as videos.
func (s *LocalStorage) Inventory(ctx context.Context) (Inventory, error) {
	var inv Inventory
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return inv, fmt.Errorf("failed to read %s: %w", s.BaseDir, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return inv, err
		}
		path := filepath.Join(s.BaseDir, e.Name())
		if !e.IsDir() {
			info, err := e.Info()
			if err != nil {
				return inv, err
			}
			inv.TotalBytes += info.Size()
			if isVideo(e.Name()) {
				inv.LooseVideos++
				inv.add(VideoFile{Name: e.Name(), Path: path, Size: info.Size()})
			}
			continue
		}

		summary := ProjectSummary{Name: e.Name()}
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			inv.TotalBytes += info.Size()
			if e.Name() == logsDir || !isVideo(d.Name()) {
				return nil
			}
			summary.Videos++
			summary.Bytes += info.Size()
			inv.add(VideoFile{Project: e.Name(), Name: d.Name(), Path: p, Size: info.Size()})
			return nil
		})
		if err != nil {
			return inv, fmt.Errorf("failed to scan %s: %w", path, err)
		}
		if e.Name() != logsDir {
			inv.Projects = append(inv.Projects, summary)
		}
	}
	return inv, nil
}

func (inv *Inventory) add(v VideoFile) {
	inv.Videos = append(inv.Videos, v)
	inv.TotalVideos++
	inv.VideoBytes += v.Size
}

func isVideo(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

// WriteJSON writes v as indented JSON via a temp file and rename so readers
// never observe a partial document.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON for %s: %w", path, err)
	}
	data = append(data, '\n')
	return WriteBytes(path, data)
}

// ReadJSON decodes the file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse JSON %s: %w", path, err)
	}
	return nil
}

// WriteBytes replaces path atomically.
func WriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".campaign-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}
