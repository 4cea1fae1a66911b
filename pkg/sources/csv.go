package sources

import (
	"context"
	"fmt"
	"os"

	"github.com/fxlab/ratecast/pkg/series"
)

// CSVSource reads an exchange-rate series from a local CSV export.
type CSVSource struct {
	// Path is the CSV file to read (required).
	Path string

	// SeriesName labels the resulting series. Defaults to the value column
	// name if empty.
	SeriesName string

	// DateColumn and ValueColumn name the header columns to read.
	// Default to "date" and "value".
	DateColumn  string
	ValueColumn string
}

func (c *CSVSource) Name() string { return "csv" }

// Fetch reads and parses the file into a validated series.
func (c *CSVSource) Fetch(ctx context.Context) (*series.TimeSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Path == "" {
		return nil, fmt.Errorf("csv source: path is required")
	}

	dateCol := c.DateColumn
	if dateCol == "" {
		dateCol = "date"
	}
	valueCol := c.ValueColumn
	if valueCol == "" {
		valueCol = "value"
	}
	name := c.SeriesName
	if name == "" {
		name = valueCol
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("csv source: open %s: %w", c.Path, err)
	}
	defer f.Close()

	s, err := series.ParseCSV(f, name, dateCol, valueCol)
	if err != nil {
		return nil, fmt.Errorf("csv source: %s: %w", c.Path, err)
	}
	return s, nil
}
