package corpus

import (
	"fmt"
	"strconv"
)

// Table is the immutable document table plus its locator index.
type Table struct {
	docs    []Document
	byLoc   map[Locator]int
	catalog *Catalog
}

// NewTable places records in corpus order. Duplicate or negative locators
// are rejected because they would make resolution ambiguous.
func NewTable(records []Record, catalog *Catalog) (*Table, error) {
	if catalog == nil {
		catalog = Books()
	}
	t := &Table{
		docs:    make([]Document, len(records)),
		byLoc:   make(map[Locator]int, len(records)),
		catalog: catalog,
	}
	for i, rec := range records {
		if !rec.Locator.Valid() {
			return nil, fmt.Errorf("record %d has invalid locator %s", i, rec.Locator)
		}
		if prev, dup := t.byLoc[rec.Locator]; dup {
			return nil, fmt.Errorf("%w: %s at rows %d and %d", ErrDuplicateLocator, rec.Locator, prev, i)
		}
		name, ok := catalog.Name(rec.Locator.Group)
		if !ok {
			name = strconv.Itoa(rec.Locator.Group)
		}
		t.docs[i] = Document{
			Row:     i,
			Locator: rec.Locator,
			Name:    name,
			Text:    rec.Text,
		}
		t.byLoc[rec.Locator] = i
	}
	return t, nil
}

// SetNormalized records the normalised text of every row. It is meant for
// the build phase only, before the table is shared.
func (t *Table) SetNormalized(normalized []string) error {
	if len(normalized) != len(t.docs) {
		return fmt.Errorf("normalized text count %d does not match %d documents", len(normalized), len(t.docs))
	}
	for i := range t.docs {
		t.docs[i].Normalized = normalized[i]
	}
	return nil
}

// Len returns the number of documents.
func (t *Table) Len() int {
	return len(t.docs)
}

// Row returns the document at row i.
func (t *Table) Row(i int) Document {
	return t.docs[i]
}

// Lookup resolves a locator to its row.
func (t *Table) Lookup(loc Locator) (int, bool) {
	row, ok := t.byLoc[loc]
	return row, ok
}

// Texts returns the raw text of every row in order.
func (t *Table) Texts() []string {
	out := make([]string, len(t.docs))
	for i, d := range t.docs {
		out[i] = d.Text
	}
	return out
}

// Catalog returns the catalog the table was built with.
func (t *Table) Catalog() *Catalog {
	return t.catalog
}
