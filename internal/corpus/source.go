package corpus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/config"
)

// Source loads raw corpus records.
type Source interface {
	Load(ctx context.Context) (*LoadResult, error)
}

// LoadResult carries the kept records and the number of rows dropped for
// missing or malformed fields.
type LoadResult struct {
	Records []Record
	Dropped int
}

// Columns names the four dataset columns a source reads.
type Columns struct {
	Group    string
	Subgroup string
	Position string
	Text     string
}

// ColumnsFromConfig copies the configured column names.
func ColumnsFromConfig(c config.CorpusColumns) Columns {
	return Columns{
		Group:    c.Group,
		Subgroup: c.Subgroup,
		Position: c.Position,
		Text:     c.Text,
	}
}

// DefaultColumns matches the b,c,v,t layout of the verse datasets.
func DefaultColumns() Columns {
	return Columns{Group: "b", Subgroup: "c", Position: "v", Text: "t"}
}

// parseRecord converts raw field strings into a Record. Locator fields must
// be integers; an empty field of any kind counts as missing.
func parseRecord(group, subgroup, position, text string) (Record, error) {
	fields := [3]string{group, subgroup, position}
	var nums [3]int
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			return Record{}, fmt.Errorf("missing locator field %d", i)
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return Record{}, fmt.Errorf("locator field %d: %q is not an integer", i, f)
		}
		if n < 0 {
			return Record{}, fmt.Errorf("locator field %d: %d is negative", i, n)
		}
		nums[i] = n
	}
	if strings.TrimSpace(text) == "" {
		return Record{}, fmt.Errorf("missing text")
	}
	return Record{
		Locator: Locator{Group: nums[0], Subgroup: nums[1], Position: nums[2]},
		Text:    text,
	}, nil
}
