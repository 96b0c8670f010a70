package ports

import (
	"context"
	"io"
	"time"

	"github.com/PuerkitoBio/goquery"

	"campaignvideo/internal/core/domain"
)

// FetchStrategy is one way of retrieving a page. Strategies are ordered from
// cheapest to most evasive by the fetch chain.
type FetchStrategy interface {
	// Name identifies the strategy in logs and in FetchResult.Strategy.
	Name() string

	// Fetch returns the raw page body. Any error means the strategy failed
	// and the chain moves on.
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// Extractor turns a parsed document into an ordered, deduplicated list of
// video references. Implementations perform no I/O.
type Extractor interface {
	Extract(doc *goquery.Document, baseURL string) []domain.VideoReference
}

// Downloader defines the contract for streaming a remote file.
type Downloader interface {
	// Download fetches the file at the given URL.
	// Returns a ReadCloser that the caller must close.
	Download(ctx context.Context, fileURL string) (io.ReadCloser, error)
}

// ToolRunner runs the external video-retrieval tool.
type ToolRunner interface {
	// Retrieve downloads videoURL to outputTemplate. A nil error means the
	// tool exited with status zero.
	Retrieve(ctx context.Context, videoURL, outputTemplate string, maxHeight int, timeout time.Duration) error
}

// Storage defines the contract for persisting batch state.
type Storage interface {
	// Init creates the download directory and its logs directory.
	Init() error

	// Root returns the batch download directory.
	Root() string

	// ProjectDir creates and returns the directory for one project's artifacts.
	ProjectDir(name string) (string, error)

	// SaveStats writes the stats snapshot for the current run.
	SaveStats(ctx context.Context, stats *domain.BatchStats) error

	// LatestStats returns the most recent persisted batch report.
	LatestStats(ctx context.Context) (domain.BatchStats, error)

	// SaveCheckpoint overwrites the checkpoint file.
	SaveCheckpoint(ctx context.Context, cp domain.Checkpoint) error

	// LoadCheckpoint returns the persisted checkpoint or domain.ErrNoCheckpoint.
	LoadCheckpoint(ctx context.Context) (domain.Checkpoint, error)
}

// WorkList loads the items a batch will process.
type WorkList interface {
	Load(ctx context.Context) ([]domain.WorkItem, error)
}
