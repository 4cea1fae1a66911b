package series

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the accepted formats for the date column, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02.01.2006",
	"01/02/2006",
}

// ParseCSV reads a two-column flat file into a TimeSeries.
//
// The first row must be a header containing dateCol and valueCol (other
// columns are ignored). Rows with an empty value cell are forward-filled
// from the previous observation; leading rows with no prior value to carry
// are dropped. Rows are sorted by the loader's contract already (daily
// exports are chronological), so out-of-order timestamps are a DataError.
//
// Returns a DataError if the input cannot be parsed, the named columns are
// missing, or the series is empty after cleaning.
func ParseCSV(r io.Reader, name, dateCol, valueCol string) (*TimeSeries, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, dataErrorf("read csv header: %v", err)
	}

	dateIdx, valueIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case dateCol:
			dateIdx = i
		case valueCol:
			valueIdx = i
		}
	}
	if dateIdx < 0 {
		return nil, dataErrorf("date column %q not found in header %v", dateCol, header)
	}
	if valueIdx < 0 {
		return nil, dataErrorf("value column %q not found in header %v", valueCol, header)
	}

	var (
		times  []time.Time
		values []float64
		last   float64
		filled bool
		line   = 1
	)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, dataErrorf("read csv line %d: %v", line, err)
		}
		if dateIdx >= len(record) || valueIdx >= len(record) {
			return nil, dataErrorf("csv line %d has %d fields, need %d", line, len(record), max(dateIdx, valueIdx)+1)
		}

		ts, err := parseDate(record[dateIdx])
		if err != nil {
			return nil, dataErrorf("csv line %d: %v", line, err)
		}

		raw := strings.TrimSpace(record[valueIdx])
		if raw == "" {
			// Propagate the previous observation forward; drop rows
			// before the first real value.
			if !filled {
				continue
			}
			times = append(times, ts)
			values = append(values, last)
			continue
		}

		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, dataErrorf("csv line %d: parse value %q: %v", line, raw, err)
		}

		times = append(times, ts)
		values = append(values, v)
		last = v
		filled = true
	}

	if len(values) == 0 {
		return nil, dataErrorf("no observations after cleaning")
	}

	return New(name, times, values)
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, dataErrorf("unparseable date %q", raw)
}
