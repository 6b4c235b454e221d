// Package corpus holds the static verse table the recommender is built from:
// the canonical integer locators, the catalog of group display names, and the
// sources that load raw records from CSV files or PostgreSQL.
package corpus

import (
	"errors"
	"fmt"
)

// ErrDuplicateLocator is returned when two records share a locator.
var ErrDuplicateLocator = errors.New("duplicate locator")

// Locator identifies a single document, e.g. book, chapter and verse.
type Locator struct {
	Group    int `json:"group"`
	Subgroup int `json:"subgroup"`
	Position int `json:"position"`
}

func (l Locator) String() string {
	return fmt.Sprintf("%d:%d:%d", l.Group, l.Subgroup, l.Position)
}

// Valid reports whether every component is non-negative.
func (l Locator) Valid() bool {
	return l.Group >= 0 && l.Subgroup >= 0 && l.Position >= 0
}

// Record is one raw corpus row as produced by a Source.
type Record struct {
	Locator Locator
	Text    string
}

// Document is a record placed in the table. Row is its fixed position in
// corpus order.
type Document struct {
	Row        int
	Locator    Locator
	Name       string
	Text       string
	Normalized string
}
