package browser

import (
	"context"
	"errors"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodConfig selects the Chromium binary and identity for the go-rod engine.
type RodConfig struct {
	// BrowserPath overrides the binary. Empty lets the launcher find or
	// download one.
	BrowserPath string
	UserAgent   string
}

// RodLauncher starts a second, independently fingerprinted browser through
// go-rod with the stealth evasions applied.
func RodLauncher(cfg RodConfig) Launcher {
	return func(ctx context.Context) (Session, error) {
		l := launcher.New().
			Context(ctx).
			Headless(true).
			NoSandbox(true).
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-dev-shm-usage")
		if cfg.BrowserPath != "" {
			l = l.Bin(cfg.BrowserPath)
		}

		controlURL, err := l.Launch()
		if err != nil {
			return nil, err
		}

		browser := rod.New().ControlURL(controlURL).Context(ctx)
		if err := browser.Connect(); err != nil {
			l.Kill()
			return nil, err
		}

		p, err := stealth.Page(browser)
		if err != nil {
			_ = browser.Close()
			l.Kill()
			return nil, err
		}
		if cfg.UserAgent != "" {
			if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
				_ = browser.Close()
				l.Kill()
				return nil, err
			}
		}
		return &rodSession{launcher: l, browser: browser, page: p}, nil
	}
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func (s *rodSession) Navigate(ctx context.Context, pageURL string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(pageURL); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (s *rodSession) EvalInt(ctx context.Context, script string) (int, error) {
	res, err := s.page.Context(ctx).Eval(script)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
