package crag

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/cragrank/internal/model"
)

// Selectors for the 27crags page layout
const (
	selRouteBlock = "div.route-block"
	selName       = "h1.cragname"
	selLocation   = "h2.craglocation"
	selRouteName  = "div.route-name"
	selAscent     = "div.ascent"
	selStars      = "span.stars"
	selDate       = "div.date.pull-right.text-right"
	selMoreTicks  = "div.js-more.ticks.text-center a[href]"
)

// starScores maps the second class token of a star icon to its value
var starScores = map[string]float64{
	"empty": 0.0,
	"half":  0.5,
	"full":  1.0,
}

// ascentPrefix matches "FIRST ASCENT", "2nd ASCENT", "3RD ASCENT" and so on
var ascentPrefix = regexp.MustCompile(`(?i)^(first|\d+(st|nd|rd|th))\s+ascent\s*`)

// RoutePage is what a route detail page yields
type RoutePage struct {
	Name     string
	Location string
	Grade    string
	Ratings  []float64   // One per default-rendered ascent, in page order
	Dates    []time.Time // One per date element, in page order
	MoreHref string      // Link to the "more ticks" payload, empty if absent
}

// Ascents pairs ratings with dates. The shorter list decides the count.
func (p *RoutePage) Ascents() []model.Ascent {
	return zipAscents(p.Ratings, p.Dates)
}

// MoreTicks is the content of a "more ticks" payload
type MoreTicks struct {
	Ratings []float64

	url   string
	dates *goquery.Selection
}

// Dates parses the payload's own ascent dates. They are only read when asked
// for, so a payload with odd dates still yields its ratings.
func (m *MoreTicks) Dates() ([]time.Time, error) {
	return parseDates(m.dates, m.url)
}

// ParseRouteList returns the detail link of every route on a route list page
func ParseRouteList(pageURL string, body []byte) ([]string, error) {
	doc, err := newDocument(pageURL, body)
	if err != nil {
		return nil, err
	}

	var hrefs []string
	var parseErr error
	doc.Find(selRouteBlock).EachWithBreak(func(i int, block *goquery.Selection) bool {
		href, ok := block.Find("a").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			parseErr = &ParseError{URL: pageURL, Selector: selRouteBlock + " a[href]", Err: fmt.Errorf("route block %d: %w", i, ErrMissingElement)}
			return false
		}
		hrefs = append(hrefs, strings.TrimSpace(href))
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return hrefs, nil
}

// ParseRoutePage extracts route metadata and the default-rendered ascents
func ParseRoutePage(pageURL string, body []byte) (*RoutePage, error) {
	doc, err := newDocument(pageURL, body)
	if err != nil {
		return nil, err
	}

	page := &RoutePage{}

	name, err := requireText(doc, pageURL, selName)
	if err != nil {
		return nil, err
	}
	page.Name = strings.ReplaceAll(strings.TrimSpace(name), ",", "")

	location, err := requireText(doc, pageURL, selLocation)
	if err != nil {
		return nil, err
	}
	page.Location, err = parseLocation(location)
	if err != nil {
		return nil, &ParseError{URL: pageURL, Selector: selLocation, Err: err}
	}

	routeName, err := requireText(doc, pageURL, selRouteName)
	if err != nil {
		return nil, err
	}
	page.Grade = parseGrade(routeName)

	page.Ratings, err = parseAscentRatings(doc.Selection, pageURL)
	if err != nil {
		return nil, err
	}

	page.Dates, err = parseDates(doc.Selection, pageURL)
	if err != nil {
		return nil, err
	}

	if href, ok := doc.Find(selMoreTicks).First().Attr("href"); ok {
		page.MoreHref = strings.TrimSpace(href)
	}

	return page, nil
}

// ParseMoreTicks decodes a "more ticks" payload: a JSON object whose ticks
// field holds further ascent markup
func ParseMoreTicks(pageURL string, body []byte) (*MoreTicks, error) {
	var payload struct {
		Ticks *string `json:"ticks"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ParseError{URL: pageURL, Selector: "ticks", Err: fmt.Errorf("decode payload: %w", err)}
	}
	if payload.Ticks == nil {
		return nil, &ParseError{URL: pageURL, Selector: "ticks", Err: ErrMissingElement}
	}

	doc, err := newDocument(pageURL, []byte(*payload.Ticks))
	if err != nil {
		return nil, err
	}

	more := &MoreTicks{url: pageURL, dates: doc.Selection}

	var parseErr error
	doc.Find(selStars).EachWithBreak(func(_ int, stars *goquery.Selection) bool {
		rating, err := scoreStars(stars)
		if err != nil {
			parseErr = &ParseError{URL: pageURL, Selector: selStars, Err: err}
			return false
		}
		more.Ratings = append(more.Ratings, rating)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return more, nil
}

func newDocument(pageURL string, body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: pageURL, Err: fmt.Errorf("parse html: %w", err)}
	}
	return doc, nil
}

func requireText(doc *goquery.Document, pageURL, selector string) (string, error) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", &ParseError{URL: pageURL, Selector: selector, Err: ErrMissingElement}
	}
	return sel.Text(), nil
}

// parseLocation keeps the lines after the "on" line and joins them with "-",
// so "Boulder\non\nBukkeberget,\nØstmarka" becomes "Bukkeberget-Østmarka"
func parseLocation(text string) (string, error) {
	lines := strings.Split(strings.TrimSpace(text), "\n")

	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "on" {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("no \"on\" separator in %q: %w", text, ErrMissingElement)
	}

	var parts []string
	for _, line := range lines[start:] {
		part := strings.TrimSuffix(strings.TrimSpace(line), ",")
		part = strings.TrimSpace(part)
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "-"), nil
}

// parseGrade returns the last comma-separated token of the route name line
func parseGrade(text string) string {
	tokens := strings.Split(strings.TrimSpace(text), ",")
	return strings.TrimSpace(tokens[len(tokens)-1])
}

func parseAscentRatings(root *goquery.Selection, pageURL string) ([]float64, error) {
	var ratings []float64
	var parseErr error

	root.Find(selAscent).EachWithBreak(func(i int, ascent *goquery.Selection) bool {
		stars := ascent.Find(selStars).First()
		if stars.Length() == 0 {
			parseErr = &ParseError{URL: pageURL, Selector: selAscent + " " + selStars, Err: fmt.Errorf("ascent %d: %w", i, ErrMissingElement)}
			return false
		}
		rating, err := scoreStars(stars)
		if err != nil {
			parseErr = &ParseError{URL: pageURL, Selector: selStars, Err: fmt.Errorf("ascent %d: %w", i, err)}
			return false
		}
		ratings = append(ratings, rating)
		return true
	})

	return ratings, parseErr
}

// scoreStars sums the icons of one star group
func scoreStars(stars *goquery.Selection) (float64, error) {
	total := 0.0
	var scoreErr error

	stars.Children().EachWithBreak(func(_ int, icon *goquery.Selection) bool {
		class, _ := icon.Attr("class")
		tokens := strings.Fields(class)
		if len(tokens) < 2 {
			scoreErr = fmt.Errorf("class %q: %w", class, ErrUnknownStar)
			return false
		}
		score, ok := starScores[tokens[1]]
		if !ok {
			scoreErr = fmt.Errorf("class %q: %w", class, ErrUnknownStar)
			return false
		}
		total += score
		return true
	})

	return total, scoreErr
}

func parseDates(root *goquery.Selection, pageURL string) ([]time.Time, error) {
	var dates []time.Time
	var parseErr error

	root.Find(selDate).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		d, err := parseAscentDate(el.Text())
		if err != nil {
			parseErr = &ParseError{URL: pageURL, Selector: selDate, Err: err}
			return false
		}
		dates = append(dates, d)
		return true
	})

	return dates, parseErr
}

// parseAscentDate strips an ordinal ascent prefix and parses the remaining date
func parseAscentDate(text string) (time.Time, error) {
	s := ascentPrefix.ReplaceAllString(strings.TrimSpace(text), "")
	d, err := time.Parse(model.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("ascent date %q: %w", text, err)
	}
	return d, nil
}

func zipAscents(ratings []float64, dates []time.Time) []model.Ascent {
	n := min(len(ratings), len(dates))
	ascents := make([]model.Ascent, n)
	for i := 0; i < n; i++ {
		ascents[i] = model.Ascent{Rating: ratings[i], Date: dates[i]}
	}
	return ascents
}
