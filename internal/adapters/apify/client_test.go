package apify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignvideo/internal/logging"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newAPI(t *testing.T, finalStatus string, polls int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var statusCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/acts/apify~puppeteer-scraper/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.URL.Query().Get("token"))

		var input map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&input)) {
			return
		}
		urls := input["startUrls"].([]any)
		assert.Equal(t, "https://ks.test/p/1", urls[0].(map[string]any)["url"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"run42"}}`)
	})
	mux.HandleFunc("/actor-runs/run42", func(w http.ResponseWriter, r *http.Request) {
		status := "RUNNING"
		if statusCalls.Add(1) >= polls {
			status = finalStatus
		}
		_, _ = io.WriteString(w, `{"data":{"status":"`+status+`","defaultDatasetId":"ds7"}}`)
	})
	mux.HandleFunc("/datasets/ds7/items", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"url":"https://ks.test/p/1","html":"<html>rendered</html>"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &statusCalls
}

func TestFetchSucceeded(t *testing.T) {
	srv, polls := newAPI(t, "SUCCEEDED", 3)
	s, err := New(Options{Token: "secret", BaseURL: srv.URL, Sleep: noSleep}, logging.Component(logging.Discard(), "remote"))
	require.NoError(t, err)
	assert.Equal(t, "remote", s.Name())

	body, err := s.Fetch(context.Background(), "https://ks.test/p/1")
	require.NoError(t, err)
	assert.Equal(t, "<html>rendered</html>", string(body))
	assert.Equal(t, int32(3), polls.Load())
}

func TestFetchRunFailed(t *testing.T) {
	srv, _ := newAPI(t, "FAILED", 1)
	s, err := New(Options{Token: "secret", BaseURL: srv.URL, Sleep: noSleep}, logging.Component(logging.Discard(), "remote"))
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), "https://ks.test/p/1")
	assert.ErrorContains(t, err, "FAILED")
}

func TestFetchCancelledWhilePolling(t *testing.T) {
	srv, _ := newAPI(t, "SUCCEEDED", 1000)
	ctx, cancel := context.WithCancel(context.Background())
	var n int
	sleep := func(ctx context.Context, d time.Duration) error {
		n++
		if n == 2 {
			cancel()
		}
		return ctx.Err()
	}
	s, err := New(Options{Token: "secret", BaseURL: srv.URL, Sleep: sleep}, logging.Component(logging.Discard(), "remote"))
	require.NoError(t, err)

	_, err = s.Fetch(ctx, "https://ks.test/p/1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Options{}, logging.Component(logging.Discard(), "remote"))
	assert.Error(t, err)
}
