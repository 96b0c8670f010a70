package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"campaignvideo/internal/adapters/apify"
	"campaignvideo/internal/adapters/browser"
	"campaignvideo/internal/adapters/downloader"
	"campaignvideo/internal/adapters/httpfetch"
	"campaignvideo/internal/adapters/localstorage"
	"campaignvideo/internal/adapters/worklist"
	"campaignvideo/internal/adapters/ytdlp"
	"campaignvideo/internal/config"
	"campaignvideo/internal/core/domain"
	"campaignvideo/internal/dispatch"
	"campaignvideo/internal/extract"
	"campaignvideo/internal/fetch"
	"campaignvideo/internal/logging"
	"campaignvideo/internal/pacing"
	"campaignvideo/internal/service"
)

// defaultLimit is used when the prompt is left blank or cannot be parsed.
const defaultLimit = 5

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	log := logging.Component(logger, "main")

	banner(os.Stdout, cfg)

	items, err := worklist.NewCSVFile(cfg.WorkList).Load(context.Background())
	if err != nil {
		log.WithError(err).Fatal("Failed to load work list")
	}
	log.WithField("items", len(items)).Info("Loaded work list")

	limit := promptLimit(os.Stdin, os.Stdout)
	if limit == 0 {
		fmt.Println("Processing ALL projects...")
	} else {
		fmt.Printf("Processing up to %d projects...\n", limit)
	}

	orchestrator, err := build(cfg, logger)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize pipeline")
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn("Received interrupt signal, finishing up...")
		cancel()
	}()

	fmt.Println("\nStarting in 3 seconds... (Press Ctrl+C to cancel)")
	if err := pacing.Sleep(ctx, 3*time.Second); err != nil {
		return
	}

	stats, err := orchestrator.Run(ctx, items, service.RunOptions{Limit: limit, Resume: cfg.Resume})
	if stats != nil {
		summary(os.Stdout, stats, cfg.DownloadDir)
	}
	if err != nil {
		log.WithError(err).Error("Batch failed")
		os.Exit(1)
	}
}

// build wires the pipeline from configuration.
func build(cfg *config.Config, logger *logrus.Logger) (*service.Orchestrator, error) {
	limiter := pacing.NewHostLimiter(cfg.Pacing.HostSpacing)

	session, err := httpfetch.NewSession(httpfetch.SessionOptions{
		Referer: cfg.Fetch.Referer,
		Retries: cfg.Fetch.SessionRetries,
	}, logging.Component(logger, "session"))
	if err != nil {
		return nil, err
	}

	steps := []fetch.Step{
		{Strategy: session, Timeout: cfg.Fetch.SessionTimeout},
		{Strategy: httpfetch.NewRotating(cfg.Fetch.Referer, cfg.Fetch.RotatingTimeout), Timeout: cfg.Fetch.RotatingTimeout},
	}
	if cfg.Fetch.Browsers {
		chrome := browser.ChromeLauncher(browser.ChromeConfig{ExecPath: cfg.Fetch.ChromePath, UserAgent: httpfetch.DefaultUserAgent})
		rod := browser.RodLauncher(browser.RodConfig{BrowserPath: cfg.Fetch.RodBrowserPath, UserAgent: httpfetch.UserAgents[2]})
		steps = append(steps,
			fetch.Step{Strategy: browser.NewStrategy("chrome", chrome, browser.ChromeOptions(), logging.Component(logger, "chrome")), Timeout: cfg.Fetch.BrowserTimeout},
			fetch.Step{Strategy: browser.NewStrategy("rod", rod, browser.RodOptions(), logging.Component(logger, "rod")), Timeout: cfg.Fetch.BrowserTimeout},
		)
	}
	if cfg.Fetch.ApifyToken != "" {
		remote, err := apify.New(apify.Options{Token: cfg.Fetch.ApifyToken, ActorID: cfg.Fetch.ApifyActor}, logging.Component(logger, "remote"))
		if err != nil {
			return nil, err
		}
		steps = append(steps, fetch.Step{Strategy: remote, Timeout: cfg.Fetch.RemoteTimeout})
	}
	chain := fetch.NewChain(steps, cfg.Fetch.MinContentBytes, limiter, logging.Component(logger, "fetch"))

	extractor, err := extract.New(cfg.Mode)
	if err != nil {
		return nil, err
	}

	runner := ytdlp.NewRunner(cfg.Download.ToolPath)
	if !runner.Available() {
		logging.Component(logger, "main").WithField("path", runner.BinaryPath()).
			Warn("yt-dlp not found; hosted player downloads will fail")
	}

	dispatchLog := logging.Component(logger, "dispatch")
	dispatcher := dispatch.New(
		dispatch.NewDelegatedTool(runner, cfg.Download.MaxHeight, cfg.Download.ToolTimeout),
		dispatch.NewDirectStream(session, downloader.NewHTTPDownloader(httpfetch.DefaultUserAgent), limiter, cfg.Download.TransferTimeout, dispatchLog),
		dispatchLog,
	)

	return service.NewOrchestrator(
		chain,
		extractor,
		dispatcher,
		localstorage.NewLocalStorage(cfg.DownloadDir),
		pacing.NewPacer(cfg.Pacing.MinDelay, cfg.Pacing.MaxDelay, nil),
		service.Settings{Mode: cfg.Mode, DownloadWorkers: cfg.Download.Workers},
		logging.Component(logger, "orchestrator"),
	), nil
}

// promptLimit asks how many items to process. Zero means all.
func promptLimit(r io.Reader, w io.Writer) int {
	fmt.Fprint(w, "\nHow many projects to process? (Enter number, 'all', or press Enter for 5): ")
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return defaultLimit
	}
	return parseLimit(line)
}

func parseLimit(input string) int {
	input = strings.ToLower(strings.TrimSpace(input))
	switch input {
	case "":
		return defaultLimit
	case "all":
		return 0
	}
	n, err := strconv.Atoi(input)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	return n
}

func banner(w io.Writer, cfg *config.Config) {
	title := color.New(color.FgHiCyan, color.Bold)
	title.Fprintln(w, strings.Repeat("=", 70))
	title.Fprintln(w, "CAMPAIGN VIDEO DOWNLOADER")
	title.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "Work list:          %s\n", cfg.WorkList)
	fmt.Fprintf(w, "Download directory: %s\n", cfg.DownloadDir)
	fmt.Fprintf(w, "Extraction mode:    %s\n", cfg.Mode)
	fmt.Fprintf(w, "Pacing:             %s-%s between projects\n", cfg.Pacing.MinDelay, cfg.Pacing.MaxDelay)
	if cfg.Resume {
		fmt.Fprintln(w, "Resume:             continuing after last checkpoint")
	}
	title.Fprintln(w, strings.Repeat("=", 70))
}

func summary(w io.Writer, stats *domain.BatchStats, dir string) {
	title := color.New(color.FgHiCyan, color.Bold)
	fmt.Fprintln(w)
	title.Fprintln(w, "=== Batch Summary ===")
	fmt.Fprintf(w, "Run ID:            %s\n", stats.RunID)
	fmt.Fprintf(w, "Total projects:    %d\n", stats.TotalItems)
	fmt.Fprintf(w, "Processed:         %d\n", stats.Processed)
	fmt.Fprintf(w, "With videos:       %d\n", stats.ItemsWithReferences)
	fmt.Fprintf(w, "Videos found:      %d\n", stats.ReferencesFound)
	color.New(color.FgHiGreen).Fprintf(w, "Videos downloaded: %d\n", stats.DownloadsSucceeded)
	fmt.Fprintf(w, "Skipped:           %d\n", stats.ItemsSkipped)
	if len(stats.Errors) > 0 {
		color.New(color.FgHiRed).Fprintf(w, "Errors:            %d\n", len(stats.Errors))
	}
	if stats.Interrupted {
		color.New(color.FgHiYellow).Fprintln(w, "Interrupted: rerun with RESUME=true to continue")
	}
	fmt.Fprintf(w, "Downloads saved to: %s\n", dir)
}
