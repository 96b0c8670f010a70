// Package browser fetches pages through a real headless browser. Rendering is
// written against Session so the same algorithm drives Chrome via chromedp and
// Chromium via go-rod.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"campaignvideo/internal/pacing"
)

// Session is one open browser tab. Scripts are JavaScript arrow functions
// taking no arguments and returning a number.
type Session interface {
	Navigate(ctx context.Context, pageURL string) error
	EvalInt(ctx context.Context, script string) (int, error)
	HTML(ctx context.Context) (string, error)
	// Close releases the tab and terminates the browser process.
	Close() error
}

// Launcher starts a browser and returns its first tab.
type Launcher func(ctx context.Context) (Session, error)

const (
	consentScript = `() => {
  const button = Array.from(document.querySelectorAll('button'))
    .find(el => (el.innerText || el.textContent || '').toLowerCase().includes('accept'));
  if (!button) return 0;
  button.click();
  return 1;
}`
	heightScript = `() => document.body ? document.body.scrollHeight : 0`
	mediaScript  = `() => document.querySelectorAll('video, iframe').length`

	// stealthScript runs before any page script in engines without a
	// dedicated stealth library.
	stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
window.chrome = window.chrome || {runtime: {}};`
)

func scrollScript(step int) string {
	return fmt.Sprintf(`() => { window.scrollBy(0, %d); return 0; }`, step)
}

// Options tunes the render algorithm.
type Options struct {
	InitialDelay  time.Duration
	ConsentSettle time.Duration
	ScrollCycles  int
	ScrollStep    int
	ScrollPause   time.Duration
	MediaWait     time.Duration
	MediaPoll     time.Duration
	Settle        time.Duration
	Sleep         pacing.SleepFunc
}

// ChromeOptions are the timings used with the chromedp engine.
func ChromeOptions() Options {
	return Options{
		InitialDelay:  5 * time.Second,
		ConsentSettle: time.Second,
		ScrollCycles:  10,
		ScrollStep:    800,
		ScrollPause:   time.Second,
		MediaWait:     10 * time.Second,
		MediaPoll:     500 * time.Millisecond,
		Settle:        3 * time.Second,
	}
}

// RodOptions are the timings used with the go-rod engine.
func RodOptions() Options {
	o := ChromeOptions()
	o.ScrollCycles = 8
	o.ScrollStep = 1000
	return o
}

// Render loads pageURL in s and returns the document after lazy content had
// a chance to appear.
func Render(ctx context.Context, s Session, pageURL string, opts Options, log *logrus.Entry) (string, error) {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = pacing.Sleep
	}

	if err := s.Navigate(ctx, pageURL); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := sleep(ctx, opts.InitialDelay); err != nil {
		return "", err
	}

	// Consent banners are optional; any failure here is ignored.
	if clicked, err := s.EvalInt(ctx, consentScript); err == nil && clicked > 0 {
		log.Debug("Accepted consent banner")
		if err := sleep(ctx, opts.ConsentSettle); err != nil {
			return "", err
		}
	}

	if err := scroll(ctx, s, opts, sleep); err != nil {
		return "", err
	}

	if err := waitForMedia(ctx, s, opts, sleep); err != nil {
		return "", err
	}

	if err := sleep(ctx, opts.Settle); err != nil {
		return "", err
	}
	html, err := s.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("capture html: %w", err)
	}
	return html, nil
}

func scroll(ctx context.Context, s Session, opts Options, sleep pacing.SleepFunc) error {
	last, err := s.EvalInt(ctx, heightScript)
	if err != nil {
		return fmt.Errorf("read scroll height: %w", err)
	}
	step := scrollScript(opts.ScrollStep)
	for i := 0; i < opts.ScrollCycles; i++ {
		if _, err := s.EvalInt(ctx, step); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		if err := sleep(ctx, opts.ScrollPause); err != nil {
			return err
		}
		height, err := s.EvalInt(ctx, heightScript)
		if err != nil {
			return fmt.Errorf("read scroll height: %w", err)
		}
		if height == last {
			break
		}
		last = height
	}
	return nil
}

// waitForMedia polls for a video or iframe element. Timing out is not an
// error; the page is captured as it is.
func waitForMedia(ctx context.Context, s Session, opts Options, sleep pacing.SleepFunc) error {
	poll := opts.MediaPoll
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	for waited := time.Duration(0); ; waited += poll {
		if n, err := s.EvalInt(ctx, mediaScript); err == nil && n > 0 {
			return nil
		}
		if waited >= opts.MediaWait {
			return nil
		}
		if err := sleep(ctx, poll); err != nil {
			return err
		}
	}
}

// Strategy adapts a browser engine to ports.FetchStrategy. Every Fetch
// launches a fresh browser and closes it before returning.
type Strategy struct {
	name   string
	launch Launcher
	opts   Options
	log    *logrus.Entry
}

// NewStrategy creates a browser-backed fetch strategy.
func NewStrategy(name string, launch Launcher, opts Options, log *logrus.Entry) *Strategy {
	return &Strategy{name: name, launch: launch, opts: opts, log: log}
}

// Name implements ports.FetchStrategy.
func (s *Strategy) Name() string { return s.name }

// Fetch implements ports.FetchStrategy.
func (s *Strategy) Fetch(ctx context.Context, pageURL string) (body []byte, err error) {
	session, err := s.launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", s.name, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			s.log.WithError(cerr).Debug("Browser close failed")
		}
	}()

	html, err := Render(ctx, session, pageURL, s.opts, s.log.WithField("url", pageURL))
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}
