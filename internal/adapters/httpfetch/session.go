package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Referer   string
	UserAgent string
	Retries   uint64
	// InitialBackoff is the first retry interval. Zero uses 1s.
	InitialBackoff time.Duration
	Transport      http.RoundTripper
}

// Session is the bypass-capable client: it keeps cookies across requests,
// visits the site origin once per host to collect challenge cookies, sends a
// full browser header profile and retries challenge responses with backoff.
type Session struct {
	client *http.Client
	opts   SessionOptions
	log    *logrus.Entry

	mu     sync.Mutex
	warmed map[string]bool
}

// NewSession creates a Session.
func NewSession(opts SessionOptions, log *logrus.Entry) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   15 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
		}
	}
	return &Session{
		client: &http.Client{Jar: jar, Transport: transport},
		opts:   opts,
		log:    log,
		warmed: make(map[string]bool),
	}, nil
}

// Name implements ports.FetchStrategy.
func (s *Session) Name() string { return "session" }

// Fetch implements ports.FetchStrategy.
func (s *Session) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	s.warmUp(ctx, pageURL)

	var body []byte
	operation := func() error {
		resp, err := s.get(ctx, pageURL, applyBrowserHeaders)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			statusErr := &StatusError{URL: pageURL, Code: resp.StatusCode}
			if statusErr.retryable() {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
		body = data
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.InitialBackoff
	notify := func(err error, wait time.Duration) {
		s.log.WithError(err).WithField("retry_in", wait).Debug("Session fetch retry")
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, s.opts.Retries), ctx), notify)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return nil, err
	}
	return body, nil
}

// Download implements ports.Downloader with a media request profile. The
// caller must close the returned body.
func (s *Session) Download(ctx context.Context, fileURL string) (io.ReadCloser, error) {
	resp, err := s.get(ctx, fileURL, applyMediaHeaders)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &StatusError{URL: fileURL, Code: resp.StatusCode}
	}
	return resp.Body, nil
}

func (s *Session) get(ctx context.Context, rawURL string, headers func(http.Header, string, string)) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	headers(req.Header, s.opts.UserAgent, s.opts.Referer)
	return s.client.Do(req)
}

// warmUp requests the origin of pageURL once per host so that cookies set by
// an edge challenge are present on the real request. Failures are ignored.
func (s *Session) warmUp(ctx context.Context, pageURL string) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return
	}
	origin := u.Scheme + "://" + u.Host + "/"

	s.mu.Lock()
	done := s.warmed[u.Host]
	s.warmed[u.Host] = true
	s.mu.Unlock()
	if done || origin == pageURL {
		return
	}

	resp, err := s.get(ctx, origin, applyBrowserHeaders)
	if err != nil {
		s.log.WithError(err).WithField("origin", origin).Debug("Session warm-up failed")
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
