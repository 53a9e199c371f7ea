package model

import "time"

// PriorScope selects where the prior mean C of the weighted rating comes from
type PriorScope string

const (
	PriorGlobal PriorScope = "global" // Mean over every ascent in the catalog
	PriorGrade  PriorScope = "grade"  // Mean over the grade bucket's votes
)

// GradeBucket groups routes that share a grade and pass the minimum-votes filter
type GradeBucket struct {
	Grade string `json:"grade"`

	// TotalVotes holds every rating of the bucket's routes. The global prior ignores it.
	TotalVotes []float64 `json:"-"`

	Routes []RatedRoute `json:"routes"`
}

// RatedRoute is one line of the rating report
type RatedRoute struct {
	Name       string    `json:"name"`
	Location   string    `json:"location"`
	Grade      string    `json:"grade"`
	Crag       string    `json:"crag"`
	Votes      int       `json:"votes"`       // v
	Mean       float64   `json:"mean"`        // R
	Weighted   float64   `json:"wr"`          // WR
	LastAscent time.Time `json:"last_ascent"` // Most recent logged ascent
}

// RatingReport is the full result of a rating run
type RatingReport struct {
	GlobalMean float64       `json:"global_mean"` // Mean of every ascent, unfiltered
	MinVotes   int           `json:"min_votes"`
	PriorVotes int           `json:"prior_votes"` // m
	Prior      PriorScope    `json:"prior"`
	Routes     int           `json:"routes"` // Routes in the catalog
	Buckets    []GradeBucket `json:"buckets"`
}

// Rated returns the number of routes that made it into a bucket
func (r *RatingReport) Rated() int {
	n := 0
	for _, b := range r.Buckets {
		n += len(b.Routes)
	}
	return n
}

// RouteOutcome is the result of collecting one route: either Route is set or
// Err says why the route was skipped
type RouteOutcome struct {
	Crag  string
	URL   string
	Route *Route
	Err   error
}

// Skipped reports whether the route was not collected
func (o RouteOutcome) Skipped() bool {
	return o.Err != nil
}
