// Package fetch implements the document fetch chain: an ordered list of
// strategies tried until one returns content that passes validation.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"campaignvideo/internal/core/domain"
	"campaignvideo/internal/core/ports"
	"campaignvideo/internal/pacing"
)

// DefaultMinContentBytes is the size a page must exceed to count as real content.
const DefaultMinContentBytes = 1000

// Step is a strategy together with the timeout applied to each attempt.
type Step struct {
	Strategy ports.FetchStrategy
	Timeout  time.Duration
}

// Chain is the DocumentFetcher.
type Chain struct {
	steps    []Step
	minBytes int
	limiter  *pacing.HostLimiter
	log      *logrus.Entry
}

// NewChain creates a chain over steps in the given order. A nil limiter
// disables host spacing.
func NewChain(steps []Step, minBytes int, limiter *pacing.HostLimiter, log *logrus.Entry) *Chain {
	if minBytes < 0 {
		minBytes = DefaultMinContentBytes
	}
	return &Chain{
		steps:    steps,
		minBytes: minBytes,
		limiter:  limiter,
		log:      log,
	}
}

// Fetch tries every strategy in order and returns the first validated body.
// If none succeeds the error wraps domain.ErrAllStrategiesFailed.
func (c *Chain) Fetch(ctx context.Context, pageURL string) (domain.FetchResult, error) {
	var lastErr error
	for _, step := range c.steps {
		if err := ctx.Err(); err != nil {
			return domain.FetchResult{}, err
		}
		name := step.Strategy.Name()
		log := c.log.WithFields(logrus.Fields{"strategy": name, "url": pageURL})

		if err := c.limiter.Wait(ctx, pageURL); err != nil {
			return domain.FetchResult{}, err
		}

		log.Debug("Trying fetch strategy")
		body, err := c.attempt(ctx, step, pageURL)
		if err == nil {
			err = c.validate(body)
		}
		if err != nil {
			// The parent context being cancelled is an interruption, not a
			// strategy failure.
			if ctx.Err() != nil {
				return domain.FetchResult{}, ctx.Err()
			}
			log.WithError(err).Warn("Fetch strategy failed")
			lastErr = fmt.Errorf("%s: %w", name, err)
			continue
		}

		log.WithField("bytes", len(body)).Info("Fetch strategy succeeded")
		return domain.FetchResult{Body: body, Strategy: name}, nil
	}

	c.log.WithField("url", pageURL).Warn("All fetch strategies failed")
	if lastErr == nil {
		return domain.FetchResult{}, domain.ErrAllStrategiesFailed
	}
	return domain.FetchResult{}, fmt.Errorf("%w: %w", domain.ErrAllStrategiesFailed, lastErr)
}

func (c *Chain) attempt(ctx context.Context, step Step, pageURL string) (body []byte, err error) {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			body, err = nil, fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return step.Strategy.Fetch(ctx, pageURL)
}

func (c *Chain) validate(body []byte) error {
	if len(body) <= c.minBytes {
		return fmt.Errorf("%w: got %d bytes, need more than %d", domain.ErrContentTooSmall, len(body), c.minBytes)
	}
	return nil
}

// IsNoContent reports whether err means the page could not be fetched.
func IsNoContent(err error) bool {
	return errors.Is(err, domain.ErrAllStrategiesFailed)
}
