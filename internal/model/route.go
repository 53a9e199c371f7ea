package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the on-disk form of ascent dates
const DateLayout = "2006-01-02"

// Ascent is a single logged climb of a route
type Ascent struct {
	Rating float64
	Date   time.Time
}

// Route holds a route's metadata and its public ascents in page order.
// Name is the catalog key and is not part of the serialized record.
type Route struct {
	Name     string
	Location string
	Grade    string
	Crag     string
	Ascents  []Ascent
}

// Ratings returns the ascent ratings in order
func (r *Route) Ratings() []float64 {
	ratings := make([]float64, len(r.Ascents))
	for i, a := range r.Ascents {
		ratings[i] = a.Rating
	}
	return ratings
}

// Votes returns the number of ascent ratings
func (r *Route) Votes() int {
	return len(r.Ascents)
}

// LastAscent returns the most recent ascent date, or the zero time if there are none
func (r *Route) LastAscent() time.Time {
	var last time.Time
	for _, a := range r.Ascents {
		if a.Date.After(last) {
			last = a.Date
		}
	}
	return last
}

// routeRecord is the catalog file shape: ratings and dates are parallel arrays
type routeRecord struct {
	Location string    `json:"location"`
	Grade    string    `json:"grade"`
	Ratings  []float64 `json:"ratings"`
	Crag     string    `json:"crag"`
	Dates    []string  `json:"dates"`
}

// MarshalJSON writes the route in catalog file form
func (r Route) MarshalJSON() ([]byte, error) {
	rec := routeRecord{
		Location: r.Location,
		Grade:    r.Grade,
		Ratings:  make([]float64, len(r.Ascents)),
		Crag:     r.Crag,
		Dates:    make([]string, len(r.Ascents)),
	}
	for i, a := range r.Ascents {
		rec.Ratings[i] = a.Rating
		rec.Dates[i] = a.Date.Format(DateLayout)
	}
	return json.Marshal(rec)
}

// UnmarshalJSON reads a route in catalog file form. Name is left empty;
// the catalog fills it from the map key.
func (r *Route) UnmarshalJSON(data []byte) error {
	var rec routeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if len(rec.Ratings) != len(rec.Dates) {
		return fmt.Errorf("ratings and dates differ in length (%d vs %d)", len(rec.Ratings), len(rec.Dates))
	}

	ascents := make([]Ascent, len(rec.Ratings))
	for i := range rec.Ratings {
		d, err := time.Parse(DateLayout, rec.Dates[i])
		if err != nil {
			return fmt.Errorf("parse date %q: %w", rec.Dates[i], err)
		}
		ascents[i] = Ascent{Rating: rec.Ratings[i], Date: d}
	}

	r.Location = rec.Location
	r.Grade = rec.Grade
	r.Crag = rec.Crag
	r.Ascents = ascents
	return nil
}

// Catalog maps route name to route. One file holds one catalog snapshot.
type Catalog map[string]*Route

// Merge copies every route of other into c. Routes of the same name are
// overwritten by other's.
func (c Catalog) Merge(other Catalog) {
	for name, route := range other {
		c[name] = route
	}
}

// Add inserts the route under its name, replacing any earlier route of that name
func (c Catalog) Add(route *Route) {
	c[route.Name] = route
}

// UnmarshalJSON decodes the catalog and sets each route's Name from its key
func (c *Catalog) UnmarshalJSON(data []byte) error {
	var raw map[string]*Route
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Catalog, len(raw))
	for name, route := range raw {
		if route == nil {
			return fmt.Errorf("route %q: null record", name)
		}
		route.Name = name
		out[name] = route
	}
	*c = out
	return nil
}
