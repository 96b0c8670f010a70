// Package report summarises what a batch has produced so far: the latest
// stats, the resume point and the artifacts on disk.
package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"

	"campaignvideo/internal/adapters/localstorage"
	"campaignvideo/internal/core/domain"
)

// Summary is everything the report prints.
type Summary struct {
	Stats      *domain.BatchStats
	Checkpoint *domain.Checkpoint
	Inventory  localstorage.Inventory
}

// Build collects a Summary. Missing stats or checkpoint are not errors.
func Build(ctx context.Context, storage *localstorage.LocalStorage) (Summary, error) {
	var sum Summary

	stats, err := storage.LatestStats(ctx)
	switch {
	case err == nil:
		sum.Stats = &stats
	case !errors.Is(err, domain.ErrNoStats):
		return sum, err
	}

	cp, err := storage.LoadCheckpoint(ctx)
	switch {
	case err == nil:
		sum.Checkpoint = &cp
	case !errors.Is(err, domain.ErrNoCheckpoint):
		return sum, err
	}

	inv, err := storage.Inventory(ctx)
	if err != nil {
		return sum, err
	}
	sort.Slice(inv.Projects, func(i, j int) bool { return inv.Projects[i].Name < inv.Projects[j].Name })
	sum.Inventory = inv
	return sum, nil
}

var (
	heading = color.New(color.FgHiCyan, color.Bold)
	good    = color.New(color.FgHiGreen)
	warn    = color.New(color.FgHiYellow)
	bad     = color.New(color.FgHiRed)
	faint   = color.New(color.FgWhite, color.Italic)
)

const rule = "======================================================================"

// Print writes the full report.
func Print(w io.Writer, sum Summary) {
	heading.Fprintln(w, rule)
	heading.Fprintln(w, "DOWNLOAD REPORT")
	heading.Fprintln(w, rule)

	if s := sum.Stats; s != nil {
		fmt.Fprintf(w, "Run:                  %s (%s)\n", s.RunID, s.Mode)
		fmt.Fprintf(w, "Started:              %s\n", s.StartedAt.Local().Format(time.DateTime))
		if !s.FinishedAt.IsZero() {
			fmt.Fprintf(w, "Finished:             %s\n", s.FinishedAt.Local().Format(time.DateTime))
		}
		if s.Interrupted {
			warn.Fprintln(w, "Status:               interrupted")
		}
		fmt.Fprintf(w, "Total projects:       %d\n", s.TotalItems)
		fmt.Fprintf(w, "Processed:            %d\n", s.Processed)
		fmt.Fprintf(w, "Projects with videos: %d\n", s.ItemsWithReferences)
		fmt.Fprintf(w, "Videos found:         %d\n", s.ReferencesFound)
		good.Fprintf(w, "Videos downloaded:    %d\n", s.DownloadsSucceeded)
		fmt.Fprintf(w, "Projects skipped:     %d\n", s.ItemsSkipped)
		if len(s.Errors) > 0 {
			bad.Fprintf(w, "Errors:               %d\n", len(s.Errors))
			for _, e := range s.Errors {
				faint.Fprintf(w, "  - %s: %s\n", e.ItemID, e.Message)
			}
		}
	} else {
		warn.Fprintln(w, "No batch statistics found")
	}

	fmt.Fprintln(w)
	if cp := sum.Checkpoint; cp != nil {
		fmt.Fprintf(w, "Last checkpoint:      %s\n", cp.Timestamp.Local().Format(time.DateTime))
		fmt.Fprintf(w, "Last processed index: %d\n", cp.CurrentIndex)
	} else {
		warn.Fprintln(w, "No checkpoint found")
	}

	inv := sum.Inventory
	fmt.Fprintln(w)
	heading.Fprintf(w, "Projects (%d)\n", len(inv.Projects))
	for _, p := range inv.Projects {
		fmt.Fprintf(w, "  %-48s %3d videos  %10s\n", p.Name, p.Videos, units.HumanSize(float64(p.Bytes)))
	}
	if inv.LooseVideos > 0 {
		fmt.Fprintf(w, "  %-48s %3d videos\n", "(download root)", inv.LooseVideos)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total videos on disk: %d\n", inv.TotalVideos)
	fmt.Fprintf(w, "Video size:           %s\n", units.HumanSize(float64(inv.VideoBytes)))
	fmt.Fprintf(w, "Disk usage:           %s\n", units.HumanSize(float64(inv.TotalBytes)))
	heading.Fprintln(w, rule)
}

// ExportCSV writes one row per video file.
func ExportCSV(w io.Writer, inv localstorage.Inventory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"project", "filename", "size_bytes", "size", "path"}); err != nil {
		return err
	}
	for _, v := range inv.Videos {
		record := []string{
			v.Project,
			v.Name,
			strconv.FormatInt(v.Size, 10),
			units.HumanSize(float64(v.Size)),
			v.Path,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseCommand maps the first CLI argument to a report action.
func ParseCommand(args []string) (string, error) {
	if len(args) == 0 {
		return "full", nil
	}
	switch cmd := strings.ToLower(args[0]); cmd {
	case "full", "export":
		return cmd, nil
	default:
		return "", fmt.Errorf("unknown command %q", args[0])
	}
}
