// Package apify renders pages remotely through an Apify actor run. It is the
// last fetch strategy and is only enabled when an API token is configured.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"campaignvideo/internal/pacing"
)

const (
	DefaultBaseURL = "https://api.apify.com/v2"
	// DefaultActorID is apify/puppeteer-scraper.
	DefaultActorID = "apify~puppeteer-scraper"

	defaultPollInterval = 3 * time.Second
)

// pageFunction runs inside the actor and returns the rendered document.
const pageFunction = `async function pageFunction(context) {
  const { page, request } = context;
  await new Promise(r => setTimeout(r, 5000));
  return { url: request.url, html: await page.content() };
}`

// Options configures the remote strategy.
type Options struct {
	Token        string
	ActorID      string
	BaseURL      string
	PollInterval time.Duration
	Sleep        pacing.SleepFunc
	HTTPClient   *http.Client
}

// Strategy implements ports.FetchStrategy on top of the Apify REST API.
type Strategy struct {
	opts   Options
	client *http.Client
	log    *logrus.Entry
}

// New creates the strategy. It fails without a token.
func New(opts Options, log *logrus.Entry) (*Strategy, error) {
	if opts.Token == "" {
		return nil, errors.New("apify token not set")
	}
	if opts.ActorID == "" {
		opts.ActorID = DefaultActorID
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Sleep == nil {
		opts.Sleep = pacing.Sleep
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	return &Strategy{opts: opts, client: client, log: log}, nil
}

// Name implements ports.FetchStrategy.
func (s *Strategy) Name() string { return "remote" }

// Fetch starts an actor run for pageURL, waits for it and returns the html
// of the first dataset item.
func (s *Strategy) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	runID, err := s.startRun(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to start actor run: %w", err)
	}
	s.log.WithFields(logrus.Fields{"run": runID, "url": pageURL}).Debug("Actor run started")

	datasetID, err := s.waitForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return s.firstPage(ctx, datasetID)
}

func (s *Strategy) endpoint(path string) string {
	return fmt.Sprintf("%s%s?token=%s", s.opts.BaseURL, path, url.QueryEscape(s.opts.Token))
}

func (s *Strategy) startRun(ctx context.Context, pageURL string) (string, error) {
	input := map[string]any{
		"startUrls":          []map[string]string{{"url": pageURL}},
		"pageFunction":       pageFunction,
		"maxPagesPerCrawl":   1,
		"proxyConfiguration": map[string]any{"useApifyProxy": true},
	}
	body, err := json.Marshal(input)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/acts/"+s.opts.ActorID+"/runs"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Data.ID, nil
}

// waitForRun polls the run until it reaches a terminal status and returns
// its dataset.
func (s *Strategy) waitForRun(ctx context.Context, runID string) (string, error) {
	for {
		if err := s.opts.Sleep(ctx, s.opts.PollInterval); err != nil {
			return "", err
		}

		var status struct {
			Data struct {
				Status           string `json:"status"`
				DefaultDatasetID string `json:"defaultDatasetId"`
			} `json:"data"`
		}
		if err := s.getJSON(ctx, "/actor-runs/"+runID, &status); err != nil {
			return "", err
		}

		switch status.Data.Status {
		case "SUCCEEDED":
			return status.Data.DefaultDatasetID, nil
		case "FAILED", "ABORTED", "TIMED-OUT":
			return "", fmt.Errorf("actor run failed with status: %s", status.Data.Status)
		}
	}
}

func (s *Strategy) firstPage(ctx context.Context, datasetID string) ([]byte, error) {
	var items []struct {
		HTML string `json:"html"`
	}
	if err := s.getJSON(ctx, "/datasets/"+datasetID+"/items", &items); err != nil {
		return nil, err
	}
	if len(items) == 0 || items[0].HTML == "" {
		return nil, errors.New("actor returned no page")
	}
	return []byte(items[0].HTML), nil
}

func (s *Strategy) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(path), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
