// Package pacing holds the two throttles used by the pipeline: the randomized
// delay between work items and the per-host minimum spacing between requests.
package pacing

import (
	"context"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer waits a random duration in [Min, Max) between work items.
type Pacer struct {
	Min   time.Duration
	Max   time.Duration
	sleep SleepFunc

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPacer creates a Pacer. A nil sleep uses Sleep.
func NewPacer(min, max time.Duration, sleep SleepFunc) *Pacer {
	if max < min {
		max = min
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &Pacer{
		Min:   min,
		Max:   max,
		sleep: sleep,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay without waiting.
func (p *Pacer) Next() time.Duration {
	span := p.Max - p.Min
	if span <= 0 {
		return p.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Min + time.Duration(p.rnd.Int63n(int64(span)))
}

// Wait sleeps for the next delay. It returns the delay used and ctx.Err() if
// the wait was interrupted.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	d := p.Next()
	return d, p.sleep(ctx, d)
}

// HostLimiter enforces a minimum spacing between requests to the same host.
type HostLimiter struct {
	spacing time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter. A zero spacing disables limiting.
func NewHostLimiter(spacing time.Duration) *HostLimiter {
	return &HostLimiter{
		spacing:  spacing,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to rawURL's host is allowed.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if h == nil || h.spacing <= 0 {
		return ctx.Err()
	}
	return h.limiter(HostOf(rawURL)).Wait(ctx)
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(h.spacing), 1)
		h.limiters[host] = l
	}
	return l
}

// HostOf returns the lower-cased host of rawURL, or rawURL itself if it does
// not parse.
func HostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Hostname())
}
