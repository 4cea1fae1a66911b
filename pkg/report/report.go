// Package report aggregates per-model evaluation metrics into a ranked,
// comparable summary.
package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fxlab/ratecast/pkg/models"
)

// Entry is one model family in the report. Exactly one of Metrics or
// Failure is set: failed models keep their failure reason and carry no
// rank.
type Entry struct {
	Name    string         `json:"name"`
	Rank    int            `json:"rank,omitempty"`
	Metrics *models.Record `json:"metrics,omitempty"`
	Failure string         `json:"failure,omitempty"`
}

// Report is the ranked evaluation summary for one series run. Entries
// lists successful models in rank order followed by failures in name
// order; failures are reported, never silently dropped.
type Report struct {
	SeriesName  string    `json:"series_name"`
	GeneratedAt time.Time `json:"generated_at"`
	Entries     []Entry   `json:"entries"`
}

// Build ranks the evaluated models ascending by RMSE, ties broken by MAE
// and then name, and appends the failed models with their reasons.
func Build(seriesName string, records map[string]models.Record, failures map[string]string) *Report {
	ranked := make([]Entry, 0, len(records))
	for name, rec := range records {
		rec := rec
		ranked = append(ranked, Entry{Name: name, Metrics: &rec})
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i].Metrics, ranked[j].Metrics
		if a.RMSE != b.RMSE {
			return a.RMSE < b.RMSE
		}
		if a.MAE != b.MAE {
			return a.MAE < b.MAE
		}
		return ranked[i].Name < ranked[j].Name
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	failed := make([]Entry, 0, len(failures))
	for name, reason := range failures {
		failed = append(failed, Entry{Name: name, Failure: reason})
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].Name < failed[j].Name })

	return &Report{
		SeriesName:  seriesName,
		GeneratedAt: time.Now().UTC(),
		Entries:     append(ranked, failed...),
	}
}

// Best returns the top-ranked entry, or false when every model failed.
func (r *Report) Best() (Entry, bool) {
	for _, e := range r.Entries {
		if e.Rank == 1 {
			return e, true
		}
	}
	return Entry{}, false
}

// Render writes a human-readable table of the report.
func (r *Report) Render(w io.Writer) error {
	fmt.Fprintf(w, "Model evaluation for %s (%s)\n\n", r.SeriesName, r.GeneratedAt.Format(time.RFC3339))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tMODEL\tRMSE\tMAE\tMSE\tMAPE")
	for _, e := range r.Entries {
		if e.Metrics == nil {
			continue
		}
		mape := "undefined"
		if e.Metrics.MAPEDefined {
			mape = fmt.Sprintf("%.2f%%", e.Metrics.MAPE)
		}
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.4f\t%.4f\t%s\n",
			e.Rank, e.Name, e.Metrics.RMSE, e.Metrics.MAE, e.Metrics.MSE, mape)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	first := true
	for _, e := range r.Entries {
		if e.Failure == "" {
			continue
		}
		if first {
			fmt.Fprintln(w, "\nFailed models:")
			first = false
		}
		fmt.Fprintf(w, "  %s: %s\n", e.Name, e.Failure)
	}
	return nil
}
