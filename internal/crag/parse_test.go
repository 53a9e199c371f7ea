package crag

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/cragrank/internal/model"
)

const routeListHTML = `<html><body>
<div class="route-block"><a href="/crags/ostmarka-bukkeberget/routes/lurvete-larry">Lurvete Larry</a><a href="/other">x</a></div>
<div class="route-block"><a href="/crags/ostmarka-bukkeberget/routes/svaberg">Svaberg</a></div>
<div class="sidebar"><a href="/ignored">ignored</a></div>
</body></html>`

const routePageHTML = `<html><body>
<h1 class="cragname">
  Lurvete, Larry
</h1>
<h2 class="craglocation">
Boulder
on
Bukkeberget,
Østmarka
</h2>
<div class="route-name">Lurvete Larry, Boulder, 6A+</div>
<div class="ascent"><span class="stars"><i class="star full"></i><i class="star full"></i><i class="star empty"></i></span></div>
<div class="date pull-right text-right">
FIRST ASCENT
2020-05-01
</div>
<div class="ascent"><span class="stars"><i class="star full"></i><i class="star half"></i><i class="star empty"></i></span></div>
<div class="date pull-right text-right">
2nd ASCENT
2021-06-12
</div>
<div class="ascent"><span class="stars"><i class="star empty"></i><i class="star empty"></i><i class="star empty"></i></span></div>
<div class="date pull-right text-right">2022-07-03</div>
<div class="js-more ticks text-center"><a href="/routes/123/ticks?page=2">Show more</a></div>
</body></html>`

const moreTicksJSON = `{"ticks": "<div class=\"ascent\"><span class=\"stars\"><i class=\"star full\"></i><i class=\"star full\"></i></span><div class=\"date pull-right text-right\">3RD ASCENT\n2019-03-03</div></div><div class=\"ascent\"><span class=\"stars\"><i class=\"star half\"></i></span><div class=\"date pull-right text-right\">2018-08-08</div></div>"}`

func day(s string) time.Time {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParseRouteList(t *testing.T) {
	hrefs, err := ParseRouteList("https://27crags.com/crags/x/routelist", []byte(routeListHTML))
	if err != nil {
		t.Fatalf("ParseRouteList: %v", err)
	}

	want := []string{
		"/crags/ostmarka-bukkeberget/routes/lurvete-larry",
		"/crags/ostmarka-bukkeberget/routes/svaberg",
	}
	if diff := cmp.Diff(want, hrefs); diff != "" {
		t.Errorf("hrefs mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRouteList_BlockWithoutLink(t *testing.T) {
	_, err := ParseRouteList("u", []byte(`<div class="route-block"><span>no link</span></div>`))
	if !errors.Is(err, ErrMissingElement) {
		t.Fatalf("expected ErrMissingElement, got %v", err)
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func TestParseRouteList_Empty(t *testing.T) {
	hrefs, err := ParseRouteList("u", []byte(`<html><body></body></html>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hrefs) != 0 {
		t.Errorf("expected no routes, got %v", hrefs)
	}
}

func TestParseRoutePage(t *testing.T) {
	page, err := ParseRoutePage("https://27crags.com/r", []byte(routePageHTML))
	if err != nil {
		t.Fatalf("ParseRoutePage: %v", err)
	}

	want := &RoutePage{
		Name:     "Lurvete Larry",
		Location: "Bukkeberget-Østmarka",
		Grade:    "6A+",
		Ratings:  []float64{2.0, 1.5, 0.0},
		Dates:    []time.Time{day("2020-05-01"), day("2021-06-12"), day("2022-07-03")},
		MoreHref: "/routes/123/ticks?page=2",
	}
	if diff := cmp.Diff(want, page); diff != "" {
		t.Errorf("page mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRoutePage_MissingElements(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		selector string
	}{
		{"no name", "<h2 class=\"craglocation\">a\non\nb</h2><div class=\"route-name\">x, 6A</div>", selName},
		{"no location", "<h1 class=\"cragname\">R</h1><div class=\"route-name\">x, 6A</div>", selLocation},
		{"no on separator", "<h1 class=\"cragname\">R</h1><h2 class=\"craglocation\">Bukkeberget</h2><div class=\"route-name\">x, 6A</div>", selLocation},
		{"no grade", "<h1 class=\"cragname\">R</h1><h2 class=\"craglocation\">a\non\nb</h2>", selRouteName},
		{"ascent without stars", "<h1 class=\"cragname\">R</h1><h2 class=\"craglocation\">a\non\nb</h2><div class=\"route-name\">x, 6A</div><div class=\"ascent\"></div>", selAscent + " " + selStars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRoutePage("u", []byte(tt.html))
			if !errors.Is(err, ErrMissingElement) {
				t.Fatalf("expected ErrMissingElement, got %v", err)
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) || parseErr.Selector != tt.selector {
				t.Errorf("expected ParseError for %q, got %v", tt.selector, err)
			}
		})
	}
}

func TestParseRoutePage_UnknownStar(t *testing.T) {
	html := "<h1 class=\"cragname\">R</h1><h2 class=\"craglocation\">a\non\nb</h2><div class=\"route-name\">x, 6A</div>" +
		`<div class="ascent"><span class="stars"><i class="star sparkly"></i></span></div>`

	_, err := ParseRoutePage("u", []byte(html))
	if !errors.Is(err, ErrUnknownStar) {
		t.Fatalf("expected ErrUnknownStar, got %v", err)
	}
}

func TestParseRoutePage_BadDate(t *testing.T) {
	html := "<h1 class=\"cragname\">R</h1><h2 class=\"craglocation\">a\non\nb</h2><div class=\"route-name\">x, 6A</div>" +
		`<div class="date pull-right text-right">yesterday</div>`

	_, err := ParseRoutePage("u", []byte(html))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Selector != selDate {
		t.Fatalf("expected date ParseError, got %v", err)
	}
}

func TestParseMoreTicks(t *testing.T) {
	more, err := ParseMoreTicks("u", []byte(moreTicksJSON))
	if err != nil {
		t.Fatalf("ParseMoreTicks: %v", err)
	}

	if diff := cmp.Diff([]float64{2.0, 0.5}, more.Ratings); diff != "" {
		t.Errorf("ratings mismatch (-want +got):\n%s", diff)
	}
	dates, err := more.Dates()
	if err != nil {
		t.Fatalf("Dates: %v", err)
	}
	if diff := cmp.Diff([]time.Time{day("2019-03-03"), day("2018-08-08")}, dates); diff != "" {
		t.Errorf("dates mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMoreTicks_BadDatesOnlyFailOnRead(t *testing.T) {
	body := `{"ticks": "<span class=\"stars\"><i class=\"star full\"></i></span><div class=\"date pull-right text-right\">Yesterday</div>"}`
	more, err := ParseMoreTicks("u", []byte(body))
	if err != nil {
		t.Fatalf("ParseMoreTicks: %v", err)
	}
	if !cmp.Equal(more.Ratings, []float64{1}) {
		t.Errorf("expected ratings [1], got %v", more.Ratings)
	}
	if _, err := more.Dates(); err == nil {
		t.Error("expected Dates to reject \"Yesterday\"")
	}
}

func TestParseMoreTicks_BadPayload(t *testing.T) {
	for _, body := range []string{`not json`, `{"other": "x"}`} {
		if _, err := ParseMoreTicks("u", []byte(body)); err == nil {
			t.Errorf("expected error for %q", body)
		}
	}
}

func TestParseAscentDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2020-05-01", "2020-05-01"},
		{"  FIRST ASCENT\n2020-05-01 ", "2020-05-01"},
		{"2nd ASCENT\n2021-06-12", "2021-06-12"},
		{"2ND ASCENT\n2021-06-12", "2021-06-12"},
		{"3RD ASCENT\n2019-03-03", "2019-03-03"},
		{"21st ascent 2019-03-03", "2019-03-03"},
		{"11TH ASCENT\n\n2017-01-31", "2017-01-31"},
	}

	for _, tt := range tests {
		got, err := parseAscentDate(tt.in)
		if err != nil {
			t.Errorf("parseAscentDate(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(day(tt.want)) {
			t.Errorf("parseAscentDate(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Boulder\non\nBukkeberget,\nØstmarka", "Bukkeberget-Østmarka"},
		{"\n  Boulder\n  on\n  Bukkeberget\n", "Bukkeberget"},
		{"Sport\non\nA,\nB,\nC", "A-B-C"},
	}

	for _, tt := range tests {
		got, err := parseLocation(tt.in)
		if err != nil {
			t.Errorf("parseLocation(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLocation(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseGrade(t *testing.T) {
	tests := map[string]string{
		"Lurvete Larry, 6A":    "6A",
		" Name, Boulder, 7B+ ": "7B+",
		"NoComma":              "NoComma",
		"Trailing, ":           "",
	}
	for in, want := range tests {
		if got := parseGrade(in); got != want {
			t.Errorf("parseGrade(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestZipAscents_ShorterListWins(t *testing.T) {
	dates := []time.Time{day("2020-01-01"), day("2020-01-02")}

	got := zipAscents([]float64{1, 0.5, 0}, dates)
	if len(got) != 2 {
		t.Fatalf("expected 2 ascents, got %d", len(got))
	}
	if got[1].Rating != 0.5 || !got[1].Date.Equal(dates[1]) {
		t.Errorf("unexpected second ascent: %+v", got[1])
	}

	if got := zipAscents([]float64{1}, dates); len(got) != 1 {
		t.Errorf("expected 1 ascent, got %d", len(got))
	}
	if got := zipAscents(nil, dates); len(got) != 0 {
		t.Errorf("expected no ascents, got %d", len(got))
	}
}
