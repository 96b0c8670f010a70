package browser

import (
	"context"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromeConfig selects the Chrome binary and identity.
type ChromeConfig struct {
	// ExecPath overrides the Chrome executable. Empty uses chromedp's lookup.
	ExecPath  string
	UserAgent string
}

// ChromeLauncher starts headless Chrome through chromedp.
func ChromeLauncher(cfg ChromeConfig) Launcher {
	return func(ctx context.Context) (Session, error) {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("disable-extensions", true),
			chromedp.WindowSize(1920, 1080),
		)
		if cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
		}
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}

		allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
		tabCtx, tabCancel := chromedp.NewContext(allocCtx)
		cancel := func() {
			tabCancel()
			allocCancel()
		}

		err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}))
		if err != nil {
			cancel()
			return nil, err
		}
		return &chromeSession{ctx: tabCtx, cancel: cancel}, nil
	}
}

type chromeSession struct {
	ctx    context.Context
	cancel func()
}

// run executes actions on the tab while honouring the per-call ctx. Cancelling
// a child of the tab context aborts the actions without closing the tab.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, pageURL string) error {
	return s.run(ctx, chromedp.Navigate(pageURL))
}

func (s *chromeSession) EvalInt(ctx context.Context, script string) (int, error) {
	var out int
	err := s.run(ctx, chromedp.Evaluate("("+script+")()", &out))
	return out, err
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	return err
}
