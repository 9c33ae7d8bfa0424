package search

import "time"

// Query represents a search request against the index.
type Query struct {
	// Term is the free-text query. A document matches when its n-gram map
	// contains every n-gram of the term.
	Term string
	// Collection restricts results to nodes of one tree collection. Empty
	// searches every collection.
	Collection string
	// Since drops entries last updated before the given time.
	Since time.Time
	// Limit caps the number of results. Zero means no cap.
	Limit int
}

// Result captures a node match from the index.
type Result struct {
	Collection string
	NodeID     string
	Text       string
	Snippet    string
	UpdatedAt  time.Time
}
