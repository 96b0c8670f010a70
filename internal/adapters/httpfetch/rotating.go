package httpfetch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// Rotating is a plain client that presents a different browser identity on
// each request.
type Rotating struct {
	userAgents []string
	referer    string
	timeout    time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRotating creates the strategy. timeout bounds each request when the
// context carries no deadline.
func NewRotating(referer string, timeout time.Duration) *Rotating {
	return &Rotating{
		userAgents: UserAgents,
		referer:    referer,
		timeout:    timeout,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name implements ports.FetchStrategy.
func (r *Rotating) Name() string { return "rotating" }

// Fetch implements ports.FetchStrategy.
func (r *Rotating) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(0),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(r.requestTimeout(ctx))

	userAgent := r.nextUserAgent()
	c.OnRequest(func(req *colly.Request) {
		applyBrowserHeaders(*req.Headers, userAgent, r.referer)
	})

	var (
		body     []byte
		fetchErr error
	)
	c.OnResponse(func(resp *colly.Response) {
		body = resp.Body
	})
	c.OnError(func(resp *colly.Response, err error) {
		if resp != nil && resp.StatusCode != 0 {
			fetchErr = &StatusError{URL: pageURL, Code: resp.StatusCode}
			return
		}
		fetchErr = err
	})

	err := c.Visit(pageURL)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if err != nil {
		return nil, fmt.Errorf("rotating fetch: %w", err)
	}
	return body, nil
}

func (r *Rotating) nextUserAgent() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userAgents[r.rnd.Intn(len(r.userAgents))]
}

func (r *Rotating) requestTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
	}
	if r.timeout > 0 {
		return r.timeout
	}
	return 20 * time.Second
}
