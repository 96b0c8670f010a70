package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"campaignvideo/internal/config"
	"campaignvideo/internal/core/domain"
	"campaignvideo/internal/core/ports"
	"campaignvideo/internal/extract"
	"campaignvideo/internal/fetch"
)

// PageFetcher retrieves a validated document for a work item.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (domain.FetchResult, error)
}

// VideoDownloader stores one reference and reports how it went.
type VideoDownloader interface {
	Download(ctx context.Context, ref domain.VideoReference, targetDir, stem string) domain.DownloadOutcome
}

// Waiter blocks between work items.
type Waiter interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// Settings tune the orchestrator.
type Settings struct {
	Mode            string
	DownloadWorkers int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// RunOptions select which part of the work list a run covers.
type RunOptions struct {
	// Limit caps the number of items processed. Zero means no limit.
	Limit int
	// Resume continues after the last item counted by the latest persisted
	// stats and folds those stats into this run.
	Resume bool
}

// Orchestrator coordinates the batch workflow.
type Orchestrator struct {
	fetcher    PageFetcher
	extractor  ports.Extractor
	downloader VideoDownloader
	storage    ports.Storage
	pacer      Waiter
	settings   Settings
	log        *logrus.Entry
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	fetcher PageFetcher,
	extractor ports.Extractor,
	downloader VideoDownloader,
	storage ports.Storage,
	pacer Waiter,
	settings Settings,
	log *logrus.Entry,
) *Orchestrator {
	if settings.Mode == "" {
		settings.Mode = config.ModePrimary
	}
	if settings.DownloadWorkers < 1 {
		settings.DownloadWorkers = 1
	}
	if settings.Clock == nil {
		settings.Clock = time.Now
	}
	return &Orchestrator{
		fetcher:    fetcher,
		extractor:  extractor,
		downloader: downloader,
		storage:    storage,
		pacer:      pacer,
		settings:   settings,
		log:        log,
	}
}

type itemStatus int

const (
	statusNoContent itemStatus = iota
	statusNoVideo
	statusDownloaded
	statusFault
)

type itemResult struct {
	status     itemStatus
	references int
	downloaded int
	err        error
}

// Run processes items sequentially. Per-item failures are recorded in the
// returned stats; only a failure to persist progress is returned as an error.
// Cancelling ctx stops the run after persisting stats marked as interrupted.
func (o *Orchestrator) Run(ctx context.Context, items []domain.WorkItem, opts RunOptions) (*domain.BatchStats, error) {
	stats := &domain.BatchStats{
		RunID:      uuid.New().String(),
		Mode:       o.settings.Mode,
		StartedAt:  o.settings.Clock().UTC(),
		TotalItems: len(items),
		LastIndex:  -1,
		Errors:     []domain.ItemError{},
	}
	log := o.log.WithField("run_id", stats.RunID)

	if err := o.storage.Init(); err != nil {
		return stats, fmt.Errorf("prepare download directory: %w", err)
	}

	start := 0
	if opts.Resume {
		var err error
		if start, err = o.resume(ctx, stats); err != nil {
			return stats, err
		}
	}

	end := len(items)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	log.WithFields(logrus.Fields{"from": start, "to": end, "total": len(items)}).Info("Batch started")

	for i := start; i < end; i++ {
		if ctx.Err() != nil {
			return o.interrupt(stats, log)
		}

		item := items[i]
		log.WithFields(logrus.Fields{"item_id": item.ID, "position": fmt.Sprintf("%d/%d", i+1, len(items))}).Info("Processing item")

		res := o.processItem(ctx, item)
		if ctx.Err() != nil {
			return o.interrupt(stats, log)
		}
		o.record(stats, item, res)
		stats.LastIndex = i

		if err := o.persist(ctx, stats); err != nil {
			return stats, err
		}

		if i+1 < end && o.pacer != nil {
			d, err := o.pacer.Wait(ctx)
			if err != nil {
				return o.interrupt(stats, log)
			}
			log.WithField("delay", d.Round(time.Second)).Debug("Paced before next item")
		}
	}

	stats.FinishedAt = o.settings.Clock().UTC()
	if err := o.storage.SaveStats(ctx, stats); err != nil {
		return stats, fmt.Errorf("save stats: %w", err)
	}
	log.WithFields(logrus.Fields{
		"processed":  stats.Processed,
		"found":      stats.ReferencesFound,
		"downloaded": stats.DownloadsSucceeded,
		"skipped":    stats.ItemsSkipped,
	}).Info("Batch finished")
	return stats, nil
}

// resume returns the index to start from and merges prior counters. The
// latest stats snapshot decides the start index; the checkpoint is only
// consulted when no snapshot exists.
func (o *Orchestrator) resume(ctx context.Context, stats *domain.BatchStats) (int, error) {
	prior, err := o.storage.LatestStats(ctx)
	switch {
	case err == nil:
		stats.Merge(prior)
		stats.LastIndex = prior.LastIndex
		if cp, cpErr := o.storage.LoadCheckpoint(ctx); cpErr == nil && cp.CurrentIndex != prior.LastIndex {
			o.log.WithFields(logrus.Fields{
				"checkpoint": cp.CurrentIndex,
				"stats":      prior.LastIndex,
			}).Warn("Checkpoint disagrees with latest stats, resuming from stats")
		}
		o.log.WithField("last_index", prior.LastIndex).Info("Resuming after last processed item")
		return prior.LastIndex + 1, nil
	case errors.Is(err, domain.ErrNoStats):
	default:
		return 0, fmt.Errorf("load previous stats: %w", err)
	}

	cp, err := o.storage.LoadCheckpoint(ctx)
	if errors.Is(err, domain.ErrNoCheckpoint) {
		o.log.Info("No checkpoint found, starting from the beginning")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	stats.LastIndex = cp.CurrentIndex
	o.log.WithField("checkpoint", cp.CurrentIndex).Info("Resuming after checkpoint")
	return cp.CurrentIndex + 1, nil
}

func (o *Orchestrator) record(stats *domain.BatchStats, item domain.WorkItem, res itemResult) {
	log := o.log.WithField("item_id", item.ID)
	switch res.status {
	case statusNoContent:
		stats.ItemsSkipped++
		reason := "fetch_error"
		if fetch.IsNoContent(res.err) {
			reason = "no_content"
		}
		log.WithError(res.err).WithField("reason", reason).Warn("Skipped item")
	case statusNoVideo:
		stats.Processed++
		log.Info("No videos found")
	case statusDownloaded:
		stats.Processed++
		stats.ItemsWithReferences++
		stats.ReferencesFound += res.references
		stats.DownloadsSucceeded += res.downloaded
		log.WithFields(logrus.Fields{"found": res.references, "downloaded": res.downloaded}).Info("Item complete")
	case statusFault:
		stats.ItemsSkipped++
		stats.RecordError(item.ID, res.err)
		log.WithError(res.err).Error("Item failed")
	}
}

func (o *Orchestrator) persist(ctx context.Context, stats *domain.BatchStats) error {
	if err := o.storage.SaveStats(ctx, stats); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	cp := domain.Checkpoint{CurrentIndex: stats.LastIndex, Timestamp: o.settings.Clock().UTC()}
	if err := o.storage.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (o *Orchestrator) interrupt(stats *domain.BatchStats, log *logrus.Entry) (*domain.BatchStats, error) {
	stats.Interrupted = true
	stats.FinishedAt = o.settings.Clock().UTC()
	log.Warn("Batch interrupted, saving progress")
	if err := o.storage.SaveStats(context.Background(), stats); err != nil {
		return stats, fmt.Errorf("save stats: %w", err)
	}
	return stats, nil
}

// processItem runs fetch, extract and download for one item. Any error or
// panic past the fetch stage is reported as a fault.
func (o *Orchestrator) processItem(ctx context.Context, item domain.WorkItem) (res itemResult) {
	log := o.log.WithFields(logrus.Fields{"item_id": item.ID, "url": item.URL})
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Error("Item pipeline panicked")
			res = itemResult{status: statusFault, err: fmt.Errorf("panic: %v", r)}
		}
	}()

	log.WithField("state", "fetching").Debug("Fetching page")
	page, err := o.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		return itemResult{status: statusNoContent, err: err}
	}

	log.WithFields(logrus.Fields{"state": "extracting", "strategy": page.Strategy}).Debug("Extracting videos")
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return itemResult{status: statusFault, err: fmt.Errorf("parse page: %w", err)}
	}
	refs := o.extractor.Extract(doc, item.URL)
	if len(refs) == 0 {
		return itemResult{status: statusNoVideo}
	}

	name := extract.SafeName(extract.Title(doc, item.ID))
	log.WithFields(logrus.Fields{"state": "downloading", "found": len(refs), "title": name}).Info("Found videos")

	var outcomes []domain.DownloadOutcome
	if o.settings.Mode == config.ModeComprehensive {
		dir, err := o.storage.ProjectDir(name)
		if err != nil {
			return itemResult{status: statusFault, err: err}
		}
		outcomes = o.downloadAll(ctx, refs, dir)
	} else {
		outcomes = []domain.DownloadOutcome{o.downloader.Download(ctx, refs[0], o.storage.Root(), name)}
	}

	res = itemResult{status: statusDownloaded, references: len(refs)}
	for _, out := range outcomes {
		if out.Success {
			res.downloaded++
		}
	}
	return res
}

// downloadAll stores every reference in dir as <provenance>_<nn>, running up
// to DownloadWorkers transfers at once.
func (o *Orchestrator) downloadAll(ctx context.Context, refs []domain.VideoReference, dir string) []domain.DownloadOutcome {
	outcomes := make([]domain.DownloadOutcome, len(refs))

	var g errgroup.Group
	g.SetLimit(o.settings.DownloadWorkers)
	for i, ref := range refs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					o.log.WithField("url", ref.URL).Errorf("Download panicked: %v", r)
					outcomes[i] = domain.DownloadOutcome{Reference: ref}
				}
			}()
			stem := fmt.Sprintf("%s_%02d", ref.Provenance, i+1)
			outcomes[i] = o.downloader.Download(ctx, ref, dir, stem)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
