package domain

import "time"

// WorkItem is one row of the work list. It is never mutated after loading.
type WorkItem struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	LaunchedAt string `json:"launched_at"`
	State      string `json:"state"`
}

// FetchResult is the raw document returned by the first fetch strategy that
// passed validation.
type FetchResult struct {
	Body     []byte
	Strategy string
}

// Provenance records which encoding of the document a reference came from.
type Provenance string

const (
	ProvenanceVideoTag      Provenance = "video_tag"
	ProvenanceSourceTag     Provenance = "source_tag"
	ProvenanceIframe        Provenance = "iframe"
	ProvenanceDirectLink    Provenance = "direct_link"
	ProvenanceDataAttribute Provenance = "data_attribute"
	ProvenanceScript        Provenance = "script"
	ProvenanceJSONLD        Provenance = "json_ld"
	ProvenanceJSONData      Provenance = "json_data"
	ProvenanceOpenGraph     Provenance = "open_graph"
	ProvenanceMetaTag       Provenance = "meta_tag"
)

// VideoReference is a candidate video found in a document.
type VideoReference struct {
	Provenance Provenance `json:"type"`
	URL        string     `json:"url"`
	Quality    string     `json:"quality,omitempty"`
	ExternalID string     `json:"video_id,omitempty"`
}

// DownloadOutcome holds the result of a single reference download.
type DownloadOutcome struct {
	Reference    VideoReference
	Success      bool
	ArtifactPath string
}

// ItemError is a per-item fault recorded in the batch report.
type ItemError struct {
	ItemID  string `json:"project_id"`
	Message string `json:"error"`
}

// BatchStats aggregates the results of one batch run. The JSON keys match the
// report format read by the report command.
type BatchStats struct {
	RunID       string    `json:"run_id,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Interrupted bool      `json:"interrupted"`
	// LastIndex is the work-list index of the last fully processed item
	// these counters include, or -1 when they include none.
	LastIndex           int         `json:"last_index"`
	TotalItems          int         `json:"total_projects"`
	Processed           int         `json:"processed"`
	ReferencesFound     int         `json:"videos_found"`
	DownloadsSucceeded  int         `json:"videos_downloaded"`
	ItemsWithReferences int         `json:"projects_with_videos"`
	ItemsSkipped        int         `json:"projects_skipped"`
	Errors              []ItemError `json:"errors"`
}

// Merge folds the counters of a prior run into s. TotalItems is left alone
// since both runs cover the same work list.
func (s *BatchStats) Merge(prior BatchStats) {
	s.Processed += prior.Processed
	s.ReferencesFound += prior.ReferencesFound
	s.DownloadsSucceeded += prior.DownloadsSucceeded
	s.ItemsWithReferences += prior.ItemsWithReferences
	s.ItemsSkipped += prior.ItemsSkipped
	if len(prior.Errors) > 0 {
		s.Errors = append(append([]ItemError{}, prior.Errors...), s.Errors...)
	}
}

// RecordError appends a per-item fault.
func (s *BatchStats) RecordError(itemID string, err error) {
	s.Errors = append(s.Errors, ItemError{ItemID: itemID, Message: err.Error()})
}

// Checkpoint marks the last fully processed work item.
type Checkpoint struct {
	CurrentIndex int       `json:"current_index"`
	Timestamp    time.Time `json:"timestamp"`
}
