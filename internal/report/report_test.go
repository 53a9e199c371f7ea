package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/cragrank/internal/model"
)

func sampleReport() *model.RatingReport {
	return &model.RatingReport{
		GlobalMean: 0.5,
		MinVotes:   5,
		PriorVotes: 5,
		Prior:      model.PriorGlobal,
		Routes:     3,
		Buckets: []model.GradeBucket{
			{
				Grade: "6A",
				Routes: []model.RatedRoute{
					{Name: "Bad", Location: "Bukkeberget-Østmarka", Grade: "6A", Crag: "ostmarka-bukkeberget", Votes: 5, Mean: 0, Weighted: 0.25},
					{Name: "Good", Location: "Bukkeberget-Østmarka", Grade: "6A", Crag: "ostmarka-bukkeberget", Votes: 5, Mean: 1, Weighted: 0.75,
						LastAscent: time.Date(2021, 6, 12, 0, 0, 0, 0, time.UTC)},
				},
			},
		},
	}
}

func TestRender_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleReport(), FormatText, SortName); err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := "Route: Bad, Crag: Bukkeberget-Østmarka, Grade: 6A, Votes: 5, Mean: 0.00, WR: 0.25\n" +
		"Route: Good, Crag: Bukkeberget-Østmarka, Grade: 6A, Votes: 5, Mean: 1.00, WR: 0.75\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
}

func TestRender_SortByWR(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleReport(), FormatText, SortWR); err != nil {
		t.Fatalf("Render: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if !strings.HasPrefix(lines[0], "Route: Good") {
		t.Errorf("expected highest WR first, got %q", lines[0])
	}
}

func TestSorted_DoesNotMutateInput(t *testing.T) {
	in := sampleReport()
	if _, err := Sorted(in, SortWR); err != nil {
		t.Fatalf("Sorted: %v", err)
	}
	if in.Buckets[0].Routes[0].Name != "Bad" {
		t.Error("Sorted reordered the input report")
	}
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleReport(), FormatTable, SortName); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	// Headers and footers are upper-cased by the table style
	for _, want := range []string{"GRADE", "GOOD", "0.75", "2021-06-12", "2 OF 3 ROUTES", "C=0.50"} {
		if !strings.Contains(strings.ToUpper(out), want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestRender_CSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleReport(), FormatCSV, SortName); err != nil {
		t.Fatalf("Render: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := [][]string{
		csvHeader,
		{"6A", "Bad", "Bukkeberget-Østmarka", "ostmarka-bukkeberget", "5", "0", "0.25", ""},
		{"6A", "Good", "Bukkeberget-Østmarka", "ostmarka-bukkeberget", "5", "1", "0.75", "2021-06-12"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleReport(), FormatJSON, SortName); err != nil {
		t.Fatalf("Render: %v", err)
	}

	var decoded struct {
		GlobalMean float64 `json:"global_mean"`
		Buckets    []struct {
			Grade  string `json:"grade"`
			Routes []struct {
				Name string  `json:"name"`
				WR   float64 `json:"wr"`
			} `json:"routes"`
		} `json:"buckets"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.GlobalMean != 0.5 || len(decoded.Buckets) != 1 || decoded.Buckets[0].Routes[1].WR != 0.75 {
		t.Errorf("unexpected JSON: %s", buf.String())
	}
	if strings.Contains(buf.String(), "TotalVotes") {
		t.Error("TotalVotes leaked into JSON output")
	}
}

func TestRender_UnknownOptions(t *testing.T) {
	if err := Render(&bytes.Buffer{}, sampleReport(), "xml", SortName); err == nil {
		t.Error("expected error for unknown format")
	}
	if err := Render(&bytes.Buffer{}, sampleReport(), FormatText, "grade"); err == nil {
		t.Error("expected error for unknown sort")
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "nested", "report.csv")
	if err := Export(csvPath, sampleReport(), SortName); err != nil {
		t.Fatalf("Export csv: %v", err)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "grade,route,") {
		t.Errorf("unexpected csv export: %s", data)
	}

	jsonPath := filepath.Join(dir, "report.JSON")
	if err := Export(jsonPath, sampleReport(), SortWR); err != nil {
		t.Fatalf("Export json: %v", err)
	}
	if data, _ := os.ReadFile(jsonPath); !json.Valid(data) {
		t.Errorf("expected valid JSON export, got %s", data)
	}

	if err := Export(filepath.Join(dir, "report.txt"), sampleReport(), SortName); err == nil {
		t.Error("expected error for unsupported extension")
	}
}
