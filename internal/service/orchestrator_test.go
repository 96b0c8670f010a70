package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignvideo/internal/adapters/localstorage"
	"campaignvideo/internal/config"
	"campaignvideo/internal/core/domain"
	"campaignvideo/internal/core/ports"
	"campaignvideo/internal/extract"
	"campaignvideo/internal/logging"
)

type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	calls  []string
	onCall func(pageURL string)
}

func (f *fakeFetcher) Fetch(ctx context.Context, pageURL string) (domain.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pageURL)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(pageURL)
	}
	if err := ctx.Err(); err != nil {
		return domain.FetchResult{}, err
	}
	body, ok := f.pages[pageURL]
	if !ok {
		return domain.FetchResult{}, fmt.Errorf("%w: 404", domain.ErrAllStrategiesFailed)
	}
	return domain.FetchResult{Body: []byte(body), Strategy: "fake"}, nil
}

type download struct {
	url, dir, stem string
}

type fakeDownloader struct {
	mu    sync.Mutex
	calls []download
	fail  map[string]bool
}

func (f *fakeDownloader) Download(ctx context.Context, ref domain.VideoReference, targetDir, stem string) domain.DownloadOutcome {
	f.mu.Lock()
	f.calls = append(f.calls, download{url: ref.URL, dir: targetDir, stem: stem})
	f.mu.Unlock()
	if f.fail[ref.URL] {
		return domain.DownloadOutcome{Reference: ref}
	}
	return domain.DownloadOutcome{Reference: ref, Success: true, ArtifactPath: filepath.Join(targetDir, stem+".mp4")}
}

type countingPacer struct{ waits int }

func (p *countingPacer) Wait(ctx context.Context) (time.Duration, error) {
	p.waits++
	return 0, ctx.Err()
}

type panicExtractor struct {
	inner   extract.Comprehensive
	panicOn string
}

func (p panicExtractor) Extract(doc *goquery.Document, baseURL string) []domain.VideoReference {
	if baseURL == p.panicOn {
		panic("selector exploded")
	}
	return p.inner.Extract(doc, baseURL)
}

type failingStorage struct {
	*localstorage.LocalStorage
}

func (failingStorage) SaveCheckpoint(context.Context, domain.Checkpoint) error {
	return errors.New("disk full")
}

func stepClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

const primaryPage = `<html><head><title>Solar Lamp</title></head><body><h1>Solar Lamp</h1>
<script>window.current_project = "{&quot;video&quot;:{&quot;id&quot;:7,&quot;high&quot;:&quot;https://v.kickstarter.com/lamp_h.mp4&quot;,&quot;base&quot;:&quot;https://v.kickstarter.com/lamp_b.mp4&quot;}}";</script>
</body></html>`

const comprehensivePage = `<html><body><h1>Garden Kit</h1>
<video src="/media/intro.mp4"></video>
<iframe src="https://www.youtube.com/embed/xyz"></iframe>
<a href="/media/intro.mp4">Download</a>
</body></html>`

const emptyPage = `<html><body><h1>No Media Here</h1><p>text only</p></body></html>`

func newOrchestrator(t *testing.T, fetcher PageFetcher, extractor ports.Extractor, dl VideoDownloader, storage *localstorage.LocalStorage, pacer Waiter, mode string, clock func() time.Time) *Orchestrator {
	t.Helper()
	return NewOrchestrator(fetcher, extractor, dl, storage, pacer, Settings{Mode: mode, DownloadWorkers: 2, Clock: clock}, logging.Component(logging.Discard(), "orchestrator"))
}

func TestRunThreeRowScenario(t *testing.T) {
	root := t.TempDir()
	storage := localstorage.NewLocalStorage(root)
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://ks.test/p/lamp":  primaryPage,
		"https://ks.test/p/empty": emptyPage,
	}}
	dl := &fakeDownloader{}
	pacer := &countingPacer{}
	items := []domain.WorkItem{
		{ID: "1", URL: "https://ks.test/p/lamp"},
		{ID: "2", URL: "https://ks.test/p/gone"},
		{ID: "3", URL: "https://ks.test/p/empty"},
	}

	o := newOrchestrator(t, fetcher, extract.Primary{}, dl, storage, pacer, config.ModePrimary, stepClock())
	stats, err := o.Run(context.Background(), items, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalItems)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.ItemsWithReferences)
	assert.Equal(t, 1, stats.ReferencesFound)
	assert.Equal(t, 1, stats.DownloadsSucceeded)
	assert.Equal(t, 1, stats.ItemsSkipped)
	assert.Empty(t, stats.Errors)
	assert.False(t, stats.Interrupted)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 2, pacer.waits)

	require.Len(t, dl.calls, 1)
	assert.Equal(t, download{url: "https://v.kickstarter.com/lamp_h.mp4", dir: root, stem: "Solar_Lamp"}, dl.calls[0])

	cp, err := storage.LoadCheckpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cp.CurrentIndex)

	persisted, err := storage.LatestStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats.Processed, persisted.Processed)
	assert.Equal(t, 2, persisted.LastIndex)
	assert.Equal(t, stats.RunID, persisted.RunID)
}

func TestRunComprehensiveDownloadsIntoProjectDir(t *testing.T) {
	root := t.TempDir()
	storage := localstorage.NewLocalStorage(root)
	fetcher := &fakeFetcher{pages: map[string]string{"https://ks.test/p/garden": comprehensivePage}}
	dl := &fakeDownloader{fail: map[string]bool{"https://www.youtube.com/embed/xyz": true}}

	o := newOrchestrator(t, fetcher, extract.Comprehensive{}, dl, storage, &countingPacer{}, config.ModeComprehensive, stepClock())
	stats, err := o.Run(context.Background(), []domain.WorkItem{{ID: "9", URL: "https://ks.test/p/garden"}}, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ReferencesFound)
	assert.Equal(t, 1, stats.DownloadsSucceeded)
	assert.Equal(t, 1, stats.ItemsWithReferences)

	dir := filepath.Join(root, "Garden_Kit")
	assert.DirExists(t, dir)
	assert.ElementsMatch(t, []download{
		{url: "https://ks.test/media/intro.mp4", dir: dir, stem: "video_tag_01"},
		{url: "https://www.youtube.com/embed/xyz", dir: dir, stem: "iframe_02"},
	}, dl.calls)
}

func TestRunRecordsItemFault(t *testing.T) {
	storage := localstorage.NewLocalStorage(t.TempDir())
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://ks.test/p/a": comprehensivePage,
		"https://ks.test/p/b": comprehensivePage,
	}}
	extractor := panicExtractor{panicOn: "https://ks.test/p/a"}

	o := newOrchestrator(t, fetcher, extractor, &fakeDownloader{}, storage, &countingPacer{}, config.ModeComprehensive, stepClock())
	stats, err := o.Run(context.Background(), []domain.WorkItem{
		{ID: "a", URL: "https://ks.test/p/a"},
		{ID: "b", URL: "https://ks.test/p/b"},
	}, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.ItemsSkipped)
	assert.Equal(t, 1, stats.Processed)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "a", stats.Errors[0].ItemID)
	assert.Contains(t, stats.Errors[0].Message, "selector exploded")
}

func TestRunInterrupted(t *testing.T) {
	storage := localstorage.NewLocalStorage(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://ks.test/p/0": emptyPage,
		"https://ks.test/p/1": comprehensivePage,
		"https://ks.test/p/2": comprehensivePage,
	}}
	fetcher.onCall = func(u string) {
		if u == "https://ks.test/p/2" {
			cancel()
		}
	}
	items := []domain.WorkItem{
		{ID: "0", URL: "https://ks.test/p/0"},
		{ID: "1", URL: "https://ks.test/p/1"},
		{ID: "2", URL: "https://ks.test/p/2"},
		{ID: "3", URL: "https://ks.test/p/3"},
	}

	o := newOrchestrator(t, fetcher, extract.Comprehensive{}, &fakeDownloader{}, storage, &countingPacer{}, config.ModeComprehensive, stepClock())
	stats, err := o.Run(ctx, items, RunOptions{})
	require.NoError(t, err)

	assert.True(t, stats.Interrupted)
	assert.Equal(t, 2, stats.Processed)
	assert.Zero(t, stats.ItemsSkipped)
	assert.Len(t, fetcher.calls, 3)

	cp, err := storage.LoadCheckpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cp.CurrentIndex)

	persisted, err := storage.LatestStats(context.Background())
	require.NoError(t, err)
	assert.True(t, persisted.Interrupted)
	assert.Equal(t, 2, persisted.Processed)
	assert.Equal(t, 1, persisted.LastIndex)
}

var resumePages = map[string]string{
	"https://ks.test/p/0": comprehensivePage,
	"https://ks.test/p/2": emptyPage,
	"https://ks.test/p/3": primaryPage,
	"https://ks.test/p/4": comprehensivePage,
}

func sixItems() []domain.WorkItem {
	items := make([]domain.WorkItem, 6)
	for i := range items {
		items[i] = domain.WorkItem{ID: fmt.Sprint(i), URL: fmt.Sprintf("https://ks.test/p/%d", i)}
	}
	return items
}

var resumeExtractor = panicExtractor{panicOn: "https://ks.test/p/4"}

func uninterruptedStats(t *testing.T) *domain.BatchStats {
	t.Helper()
	full := newOrchestrator(t, &fakeFetcher{pages: resumePages}, resumeExtractor, &fakeDownloader{}, localstorage.NewLocalStorage(t.TempDir()),
		&countingPacer{}, config.ModeComprehensive, stepClock())
	want, err := full.Run(context.Background(), sixItems(), RunOptions{})
	require.NoError(t, err)
	return want
}

func assertSameTotals(t *testing.T, want, got *domain.BatchStats) {
	t.Helper()
	assert.Equal(t, want.TotalItems, got.TotalItems)
	assert.Equal(t, want.Processed, got.Processed)
	assert.Equal(t, want.ReferencesFound, got.ReferencesFound)
	assert.Equal(t, want.DownloadsSucceeded, got.DownloadsSucceeded)
	assert.Equal(t, want.ItemsWithReferences, got.ItemsWithReferences)
	assert.Equal(t, want.ItemsSkipped, got.ItemsSkipped)
	assert.Equal(t, want.Errors, got.Errors)
	assert.Equal(t, want.LastIndex, got.LastIndex)
	assert.False(t, got.Interrupted)
}

func TestResumeMatchesUninterruptedRun(t *testing.T) {
	want := uninterruptedStats(t)
	items := sixItems()

	storage := localstorage.NewLocalStorage(t.TempDir())
	clock := stepClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &fakeFetcher{pages: resumePages, onCall: func(u string) {
		if u == "https://ks.test/p/3" {
			cancel()
		}
	}}
	first := newOrchestrator(t, fetcher, resumeExtractor, &fakeDownloader{}, storage, &countingPacer{}, config.ModeComprehensive, clock)
	partial, err := first.Run(ctx, items, RunOptions{})
	require.NoError(t, err)
	require.True(t, partial.Interrupted)

	resumedFetcher := &fakeFetcher{pages: resumePages}
	second := newOrchestrator(t, resumedFetcher, resumeExtractor, &fakeDownloader{}, storage, &countingPacer{}, config.ModeComprehensive, clock)
	got, err := second.Run(context.Background(), items, RunOptions{Resume: true})
	require.NoError(t, err)

	assert.Equal(t, "https://ks.test/p/3", resumedFetcher.calls[0])
	assertSameTotals(t, want, got)
}

func TestResumeAfterFreshRunStoppedBeforeFirstItem(t *testing.T) {
	want := uninterruptedStats(t)
	items := sixItems()
	storage := localstorage.NewLocalStorage(t.TempDir())
	clock := stepClock()

	limited := newOrchestrator(t, &fakeFetcher{pages: resumePages}, resumeExtractor, &fakeDownloader{}, storage, &countingPacer{}, config.ModeComprehensive, clock)
	_, err := limited.Run(context.Background(), items, RunOptions{Limit: 3})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := newOrchestrator(t, &fakeFetcher{pages: resumePages, onCall: func(string) { cancel() }}, resumeExtractor,
		&fakeDownloader{}, storage, &countingPacer{}, config.ModeComprehensive, clock)
	partial, err := stopped.Run(ctx, items, RunOptions{})
	require.NoError(t, err)
	require.True(t, partial.Interrupted)
	assert.Equal(t, -1, partial.LastIndex)

	resumedFetcher := &fakeFetcher{pages: resumePages}
	resumed := newOrchestrator(t, resumedFetcher, resumeExtractor, &fakeDownloader{}, storage, &countingPacer{}, config.ModeComprehensive, clock)
	got, err := resumed.Run(context.Background(), items, RunOptions{Resume: true})
	require.NoError(t, err)

	assert.Equal(t, "https://ks.test/p/0", resumedFetcher.calls[0])
	assertSameTotals(t, want, got)
}

func TestResumeWhenCheckpointWriteWasLost(t *testing.T) {
	want := uninterruptedStats(t)
	items := sixItems()
	root := t.TempDir()
	clock := stepClock()

	crashed := NewOrchestrator(&fakeFetcher{pages: resumePages}, resumeExtractor, &fakeDownloader{},
		failingStorage{localstorage.NewLocalStorage(root)}, &countingPacer{},
		Settings{Mode: config.ModeComprehensive, Clock: clock}, logging.Component(logging.Discard(), "orchestrator"))
	_, err := crashed.Run(context.Background(), items, RunOptions{})
	require.Error(t, err)

	storage := localstorage.NewLocalStorage(root)
	_, err = storage.LoadCheckpoint(context.Background())
	require.ErrorIs(t, err, domain.ErrNoCheckpoint)

	resumedFetcher := &fakeFetcher{pages: resumePages}
	resumed := newOrchestrator(t, resumedFetcher, resumeExtractor, &fakeDownloader{}, storage, &countingPacer{}, config.ModeComprehensive, clock)
	got, err := resumed.Run(context.Background(), items, RunOptions{Resume: true})
	require.NoError(t, err)

	assert.Equal(t, "https://ks.test/p/1", resumedFetcher.calls[0])
	assertSameTotals(t, want, got)
}

func TestResumeFromCheckpointWithoutStats(t *testing.T) {
	storage := localstorage.NewLocalStorage(t.TempDir())
	require.NoError(t, storage.Init())
	require.NoError(t, storage.SaveCheckpoint(context.Background(), domain.Checkpoint{CurrentIndex: 3}))

	fetcher := &fakeFetcher{pages: resumePages}
	o := newOrchestrator(t, fetcher, extract.Comprehensive{}, &fakeDownloader{}, storage, &countingPacer{}, config.ModeComprehensive, stepClock())
	stats, err := o.Run(context.Background(), sixItems(), RunOptions{Resume: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://ks.test/p/4", "https://ks.test/p/5"}, fetcher.calls)
	assert.Equal(t, 5, stats.LastIndex)
}

func TestResumeWithoutCheckpointStartsAtZero(t *testing.T) {
	storage := localstorage.NewLocalStorage(t.TempDir())
	fetcher := &fakeFetcher{pages: map[string]string{}}

	o := newOrchestrator(t, fetcher, extract.Primary{}, &fakeDownloader{}, storage, &countingPacer{}, config.ModePrimary, stepClock())
	stats, err := o.Run(context.Background(), []domain.WorkItem{{ID: "1", URL: "https://ks.test/p/1"}}, RunOptions{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://ks.test/p/1"}, fetcher.calls)
	assert.Equal(t, 1, stats.ItemsSkipped)
}

func TestRunLimit(t *testing.T) {
	storage := localstorage.NewLocalStorage(t.TempDir())
	fetcher := &fakeFetcher{pages: map[string]string{}}
	items := []domain.WorkItem{
		{ID: "1", URL: "https://ks.test/p/1"},
		{ID: "2", URL: "https://ks.test/p/2"},
		{ID: "3", URL: "https://ks.test/p/3"},
	}
	pacer := &countingPacer{}

	o := newOrchestrator(t, fetcher, extract.Primary{}, &fakeDownloader{}, storage, pacer, config.ModePrimary, stepClock())
	stats, err := o.Run(context.Background(), items, RunOptions{Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalItems)
	assert.Equal(t, 2, stats.ItemsSkipped)
	assert.Len(t, fetcher.calls, 2)
	assert.Equal(t, 1, pacer.waits)
}

func TestRunPersistenceFailureIsFatal(t *testing.T) {
	storage := failingStorage{localstorage.NewLocalStorage(t.TempDir())}
	fetcher := &fakeFetcher{pages: map[string]string{}}

	o := NewOrchestrator(fetcher, extract.Primary{}, &fakeDownloader{}, storage, &countingPacer{}, Settings{}, logging.Component(logging.Discard(), "orchestrator"))
	_, err := o.Run(context.Background(), []domain.WorkItem{
		{ID: "1", URL: "https://ks.test/p/1"},
		{ID: "2", URL: "https://ks.test/p/2"},
	}, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, fetcher.calls, 1)
}

func TestRunEmptyWorkList(t *testing.T) {
	root := filepath.Join(t.TempDir(), "downloads")
	storage := localstorage.NewLocalStorage(root)

	o := newOrchestrator(t, &fakeFetcher{}, extract.Primary{}, &fakeDownloader{}, storage, &countingPacer{}, config.ModePrimary, stepClock())
	stats, err := o.Run(context.Background(), nil, RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, stats.TotalItems)

	_, err = os.Stat(filepath.Join(root, "logs"))
	assert.NoError(t, err)
}
