package crag

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStar is returned for a star icon whose class has no score
	ErrUnknownStar = errors.New("unknown star class")

	// ErrMissingElement is returned when a page lacks an element the parser needs
	ErrMissingElement = errors.New("missing element")
)

// ParseError wraps a failure to extract data from a page
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
