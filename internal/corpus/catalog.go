package corpus

import (
	"fmt"
	"sort"
	"strings"
)

// Catalog is a closed mapping from group code to display name.
type Catalog struct {
	names map[int]string
	codes map[string]int
	order []int
}

// CatalogEntry is one code/name pair.
type CatalogEntry struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// NewCatalog builds a Catalog. Names must be unique ignoring case.
func NewCatalog(names map[int]string) (*Catalog, error) {
	c := &Catalog{
		names: make(map[int]string, len(names)),
		codes: make(map[string]int, len(names)),
		order: make([]int, 0, len(names)),
	}
	for code, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return nil, fmt.Errorf("group %d has an empty name", code)
		}
		if other, dup := c.codes[key]; dup {
			return nil, fmt.Errorf("groups %d and %d share the name %q", other, code, name)
		}
		c.names[code] = name
		c.codes[key] = code
		c.order = append(c.order, code)
	}
	sort.Ints(c.order)
	return c, nil
}

// Name returns the display name for code.
func (c *Catalog) Name(code int) (string, bool) {
	name, ok := c.names[code]
	return name, ok
}

// Code resolves a display name, ignoring case and surrounding space.
func (c *Catalog) Code(name string) (int, bool) {
	code, ok := c.codes[strings.ToLower(strings.TrimSpace(name))]
	return code, ok
}

// Entries lists the catalog ordered by code.
func (c *Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, CatalogEntry{Code: code, Name: c.names[code]})
	}
	return out
}

// Len returns the number of groups.
func (c *Catalog) Len() int {
	return len(c.order)
}

var books = map[int]string{
	1: "Genesis", 2: "Exodus", 3: "Leviticus", 4: "Numbers", 5: "Deuteronomy",
	6: "Joshua", 7: "Judges", 8: "Ruth", 9: "1 Samuel", 10: "2 Samuel",
	11: "1 Kings", 12: "2 Kings", 13: "1 Chronicles", 14: "2 Chronicles",
	15: "Ezra", 16: "Nehemiah", 17: "Esther", 18: "Job", 19: "Psalms",
	20: "Proverbs", 21: "Ecclesiastes", 22: "Song of Solomon", 23: "Isaiah",
	24: "Jeremiah", 25: "Lamentations", 26: "Ezekiel", 27: "Daniel",
	28: "Hosea", 29: "Joel", 30: "Amos", 31: "Obadiah", 32: "Jonah",
	33: "Micah", 34: "Nahum", 35: "Habakkuk", 36: "Zephaniah", 37: "Haggai",
	38: "Zechariah", 39: "Malachi", 40: "Matthew", 41: "Mark", 42: "Luke",
	43: "John", 44: "Acts", 45: "Romans", 46: "1 Corinthians",
	47: "2 Corinthians", 48: "Galatians", 49: "Ephesians", 50: "Philippians",
	51: "Colossians", 52: "1 Thessalonians", 53: "2 Thessalonians",
	54: "1 Timothy", 55: "2 Timothy", 56: "Titus", 57: "Philemon",
	58: "Hebrews", 59: "James", 60: "1 Peter", 61: "2 Peter",
	62: "1 John", 63: "2 John", 64: "3 John", 65: "Jude", 66: "Revelation",
}

// Books returns the 66-book catalog used by the verse datasets.
func Books() *Catalog {
	c, err := NewCatalog(books)
	if err != nil {
		panic(err)
	}
	return c
}
