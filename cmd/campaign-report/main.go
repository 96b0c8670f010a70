package main

import (
	"context"
	"fmt"
	"os"

	"campaignvideo/internal/adapters/localstorage"
	"campaignvideo/internal/config"
	"campaignvideo/internal/report"
)

const exportFile = "download_report.csv"

func main() {
	cmd, err := report.ParseCommand(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "Usage: campaign-report [full|export]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	storage := localstorage.NewLocalStorage(cfg.DownloadDir)
	sum, err := report.Build(context.Background(), storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", cfg.DownloadDir, err)
		os.Exit(1)
	}

	switch cmd {
	case "export":
		if err := export(sum); err != nil {
			fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported %d videos to %s\n", len(sum.Inventory.Videos), exportFile)
	default:
		report.Print(os.Stdout, sum)
	}
}

func export(sum report.Summary) error {
	f, err := os.Create(exportFile)
	if err != nil {
		return err
	}
	if err := report.ExportCSV(f, sum.Inventory); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
