// Package worklist reads the batch work list from a CSV export.
package worklist

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"campaignvideo/internal/core/domain"
)

var requiredColumns = []string{"id", "url", "launched_at", "state"}

// CSVFile implements ports.WorkList for a file on disk.
type CSVFile struct {
	Path string
}

// NewCSVFile creates a work list reader for path.
func NewCSVFile(path string) *CSVFile {
	return &CSVFile{Path: path}
}

// Load reads every row. Extra columns are ignored.
func (f *CSVFile) Load(ctx context.Context) ([]domain.WorkItem, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open work list: %w", err)
	}
	defer file.Close()
	return Parse(ctx, file)
}

// Parse reads work items from r. The header row is required; rows with an
// empty url are kept and fail later at fetch time.
func Parse(ctx context.Context, r io.Reader) ([]domain.WorkItem, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("work list is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read work list header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("work list is missing required column %q", col)
		}
	}

	field := func(record []string, col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var items []domain.WorkItem
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read work list line %d: %w", line, err)
		}
		items = append(items, domain.WorkItem{
			ID:         field(record, "id"),
			URL:        field(record, "url"),
			LaunchedAt: field(record, "launched_at"),
			State:      field(record, "state"),
		})
	}
	return items, nil
}
