package tuner

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV serializes a trial log as a flat table for offline inspection:
// one column per hyperparameter, then score (empty for failures), success
// flag and failure reason. Rows keep enumeration order.
//
// All trials must come from one search so the parameter columns line up;
// a trial whose parameters do not match the header is an error.
func WriteCSV(w io.Writer, trials []Trial) error {
	if len(trials) == 0 {
		return fmt.Errorf("tuner: no trials to export")
	}

	header := []string{"index", "family"}
	for _, p := range trials[0].Params {
		header = append(header, p.Name)
	}
	header = append(header, "score", "success", "reason")

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("tuner: write csv header: %w", err)
	}

	for _, t := range trials {
		if len(t.Params) != len(trials[0].Params) {
			return fmt.Errorf("tuner: trial %d has %d parameters, header has %d",
				t.Index, len(t.Params), len(trials[0].Params))
		}

		row := []string{strconv.Itoa(t.Index), t.Family}
		for i, p := range t.Params {
			if p.Name != trials[0].Params[i].Name {
				return fmt.Errorf("tuner: trial %d parameter %q does not match column %q",
					t.Index, p.Name, trials[0].Params[i].Name)
			}
			row = append(row, strconv.Itoa(p.Value))
		}

		score := ""
		if t.Success {
			score = strconv.FormatFloat(t.Score, 'g', -1, 64)
		}
		row = append(row, score, strconv.FormatBool(t.Success), t.Reason)

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("tuner: write csv row %d: %w", t.Index, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
