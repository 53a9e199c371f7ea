package score

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ppiankov/cragrank/internal/model"
	"github.com/ppiankov/cragrank/internal/storage"
)

var (
	// ErrNoRatings is returned when a mean is asked of no ratings
	ErrNoRatings = errors.New("no ratings")

	// ErrInvalidPriorVotes is returned for a prior vote count below 1
	ErrInvalidPriorVotes = errors.New("prior votes must be positive")
)

// Scorer computes the Bayesian weighted rating of every route:
//
//	WR = v/(v+m) * R + m/(v+m) * C
//
// where R is the route's mean rating, v its vote count, m the prior vote
// count and C the prior mean. Routes are grouped by grade and only routes
// with at least MinVotes ascents are rated.
type Scorer struct {
	minVotes   int
	priorVotes int
	prior      model.PriorScope
}

// NewScorer creates a scorer from cfg
func NewScorer(cfg model.RatingConfig) (*Scorer, error) {
	if cfg.PriorVotes <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidPriorVotes, cfg.PriorVotes)
	}
	prior := cfg.Prior
	if prior == "" {
		prior = model.PriorGlobal
	}
	if prior != model.PriorGlobal && prior != model.PriorGrade {
		return nil, fmt.Errorf("unknown prior %q", prior)
	}

	return &Scorer{
		minVotes:   cfg.MinVotes,
		priorVotes: cfg.PriorVotes,
		prior:      prior,
	}, nil
}

// RateFile loads the catalog at path and rates it
func (s *Scorer) RateFile(path string) (*model.RatingReport, error) {
	catalog, err := storage.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	return s.Rate(catalog)
}

// Rate rates every route of catalog that passes the vote threshold
func (s *Scorer) Rate(catalog model.Catalog) (*model.RatingReport, error) {
	report := &model.RatingReport{
		MinVotes:   s.minVotes,
		PriorVotes: s.priorVotes,
		Prior:      s.prior,
		Routes:     len(catalog),
	}

	buckets := Bucket(catalog, s.minVotes)
	if len(buckets) == 0 {
		// Nothing to rate; a catalog without ratings is not an error here
		if mean, err := GlobalMean(catalog); err == nil {
			report.GlobalMean = mean
		}
		report.Buckets = []model.GradeBucket{}
		return report, nil
	}

	globalMean, err := GlobalMean(catalog)
	if err != nil {
		return nil, err
	}
	report.GlobalMean = globalMean

	for i := range buckets {
		bucket := &buckets[i]

		c := globalMean
		if s.prior == model.PriorGrade {
			c, err = Mean(bucket.TotalVotes)
			if err != nil {
				return nil, fmt.Errorf("grade %s: %w", bucket.Grade, err)
			}
		}

		for j := range bucket.Routes {
			route := &bucket.Routes[j]
			route.Weighted, err = WeightedRating(route.Mean, route.Votes, s.priorVotes, c)
			if err != nil {
				return nil, fmt.Errorf("route %s: %w", route.Name, err)
			}
		}
	}

	report.Buckets = buckets
	return report, nil
}

// WeightedRating returns v/(v+m)*r + m/(v+m)*c
func WeightedRating(r float64, v, m int, c float64) (float64, error) {
	if m <= 0 {
		return 0, fmt.Errorf("%w, got %d", ErrInvalidPriorVotes, m)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative vote count %d", v)
	}
	total := float64(v + m)
	return float64(v)/total*r + float64(m)/total*c, nil
}

// GlobalMean returns the mean of every rating in catalog, whatever the
// vote threshold
func GlobalMean(catalog model.Catalog) (float64, error) {
	var all []float64
	for _, route := range catalog {
		all = append(all, route.Ratings()...)
	}
	return Mean(all)
}

// Mean returns the arithmetic mean of values
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoRatings
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// Bucket groups routes with at least minVotes ascents by grade. Routes without
// ascents are never bucketed. Grades are sorted, and routes within a grade
// are sorted by name. Weighted is left at zero.
func Bucket(catalog model.Catalog, minVotes int) []model.GradeBucket {
	threshold := max(minVotes, 1)

	byGrade := make(map[string]*model.GradeBucket)
	for name, route := range catalog {
		if route.Votes() < threshold {
			continue
		}

		bucket, ok := byGrade[route.Grade]
		if !ok {
			bucket = &model.GradeBucket{Grade: route.Grade}
			byGrade[route.Grade] = bucket
		}

		ratings := route.Ratings()
		mean, _ := Mean(ratings)
		bucket.Routes = append(bucket.Routes, model.RatedRoute{
			Name:       name,
			Location:   route.Location,
			Grade:      route.Grade,
			Crag:       route.Crag,
			Votes:      len(ratings),
			Mean:       mean,
			LastAscent: route.LastAscent(),
		})
	}

	grades := make([]string, 0, len(byGrade))
	for grade := range byGrade {
		grades = append(grades, grade)
	}
	sort.Strings(grades)

	buckets := make([]model.GradeBucket, 0, len(grades))
	for _, grade := range grades {
		bucket := byGrade[grade]
		sort.Slice(bucket.Routes, func(i, j int) bool { return bucket.Routes[i].Name < bucket.Routes[j].Name })
		for _, rated := range bucket.Routes {
			bucket.TotalVotes = append(bucket.TotalVotes, catalog[rated.Name].Ratings()...)
		}
		buckets = append(buckets, *bucket)
	}
	return buckets
}
