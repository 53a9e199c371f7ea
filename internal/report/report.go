package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ppiankov/cragrank/internal/model"
)

// Output formats
const (
	FormatText  = "text"
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

// Route orderings within a grade
const (
	SortName = "name"
	SortWR   = "wr"
)

var csvHeader = []string{"grade", "route", "location", "crag", "votes", "mean", "wr", "last_ascent"}

// Render writes report to w in the given format, ordering routes within each
// grade by sortBy
func Render(w io.Writer, report *model.RatingReport, format, sortBy string) error {
	sorted, err := Sorted(report, sortBy)
	if err != nil {
		return err
	}

	switch format {
	case FormatText, "":
		return renderText(w, sorted)
	case FormatTable:
		return renderTable(w, sorted)
	case FormatCSV:
		return renderCSV(w, sorted)
	case FormatJSON:
		return renderJSON(w, sorted)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Export writes report to path as CSV or JSON, chosen by the file extension
func Export(path string, report *model.RatingReport, sortBy string) (err error) {
	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		format = FormatCSV
	case ".json":
		format = FormatJSON
	default:
		return fmt.Errorf("export %s: extension must be .csv or .json", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("export: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create file %q: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("export: close %q: %w", path, closeErr)
		}
	}()

	return Render(f, report, format, sortBy)
}

// Sorted returns a copy of report with routes ordered by sortBy. Grade order
// is kept.
func Sorted(report *model.RatingReport, sortBy string) (*model.RatingReport, error) {
	var less func(a, b model.RatedRoute) bool
	switch sortBy {
	case SortName, "":
		less = func(a, b model.RatedRoute) bool { return a.Name < b.Name }
	case SortWR:
		less = func(a, b model.RatedRoute) bool {
			if a.Weighted != b.Weighted {
				return a.Weighted > b.Weighted
			}
			return a.Name < b.Name
		}
	default:
		return nil, fmt.Errorf("unknown sort %q", sortBy)
	}

	out := *report
	out.Buckets = make([]model.GradeBucket, len(report.Buckets))
	for i, b := range report.Buckets {
		routes := make([]model.RatedRoute, len(b.Routes))
		copy(routes, b.Routes)
		sort.SliceStable(routes, func(i, j int) bool { return less(routes[i], routes[j]) })
		b.Routes = routes
		out.Buckets[i] = b
	}
	return &out, nil
}

// renderText prints one line per route. The Crag field carries the route's
// location label.
func renderText(w io.Writer, report *model.RatingReport) error {
	for _, b := range report.Buckets {
		for _, r := range b.Routes {
			if _, err := fmt.Fprintf(w, "Route: %s, Crag: %s, Grade: %s, Votes: %d, Mean: %.2f, WR: %.2f\n",
				r.Name, r.Location, r.Grade, r.Votes, r.Mean, r.Weighted); err != nil {
				return err
			}
		}
	}
	return nil
}

func renderTable(w io.Writer, report *model.RatingReport) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Grade", "Route", "Location", "Votes", "Mean", "WR", "Last ascent"})

	for _, b := range report.Buckets {
		for _, r := range b.Routes {
			t.AppendRow(table.Row{
				b.Grade,
				r.Name,
				r.Location,
				r.Votes,
				fmt.Sprintf("%.2f", r.Mean),
				fmt.Sprintf("%.2f", r.Weighted),
				formatDate(r),
			})
		}
		t.AppendSeparator()
	}

	t.AppendFooter(table.Row{"", fmt.Sprintf("%d of %d routes", report.Rated(), report.Routes), "", "", fmt.Sprintf("C=%.2f", report.GlobalMean), fmt.Sprintf("m=%d", report.PriorVotes), ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	t.SetStyle(table.StyleRounded)

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func renderCSV(w io.Writer, report *model.RatingReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	for _, b := range report.Buckets {
		for _, r := range b.Routes {
			row := []string{
				r.Grade,
				r.Name,
				r.Location,
				r.Crag,
				strconv.Itoa(r.Votes),
				strconv.FormatFloat(r.Mean, 'f', -1, 64),
				strconv.FormatFloat(r.Weighted, 'f', -1, 64),
				formatDate(r),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("csv: write row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func renderJSON(w io.Writer, report *model.RatingReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func formatDate(r model.RatedRoute) string {
	if r.LastAscent.IsZero() {
		return ""
	}
	return r.LastAscent.Format(model.DateLayout)
}
