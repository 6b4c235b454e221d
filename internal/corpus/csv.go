package corpus

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// CSVSource reads a delimited verse file with a header row.
type CSVSource struct {
	path    string
	columns Columns
	logger  *slog.Logger
}

// NewCSVSource creates a source for the file at path.
func NewCSVSource(path string, columns Columns) *CSVSource {
	return &CSVSource{
		path:    path,
		columns: columns,
		logger:  slog.Default().With("component", "corpus-csv", "path", path),
	}
}

func (s *CSVSource) Load(ctx context.Context) (*LoadResult, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus file: %w", err)
	}
	defer f.Close()
	res, err := s.read(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("reading corpus file %s: %w", s.path, err)
	}
	s.logger.Info("corpus loaded", "records", len(res.Records), "dropped", res.Dropped)
	return res, nil
}

// ReadCSV parses CSV data from r. It is exposed for callers that already
// hold the data in memory.
func ReadCSV(ctx context.Context, r io.Reader, columns Columns) (*LoadResult, error) {
	s := &CSVSource{columns: columns, logger: slog.Default().With("component", "corpus-csv")}
	return s.read(ctx, r)
}

func (s *CSVSource) read(ctx context.Context, r io.Reader) (*LoadResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing header row")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idx, err := columnIndexes(header, s.columns)
	if err != nil {
		return nil, err
	}
	width := 0
	for _, i := range idx {
		width = max(width, i+1)
	}

	res := &LoadResult{}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(row) < width {
			res.Dropped++
			s.logger.Debug("dropping short row", "line", line, "fields", len(row))
			continue
		}
		rec, err := parseRecord(row[idx[0]], row[idx[1]], row[idx[2]], row[idx[3]])
		if err != nil {
			res.Dropped++
			s.logger.Warn("dropping malformed row", "line", line, "error", err)
			continue
		}
		rec.Text = strings.Clone(rec.Text)
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func columnIndexes(header []string, c Columns) ([4]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var idx [4]int
	for i, name := range []string{c.Group, c.Subgroup, c.Position, c.Text} {
		p, ok := pos[name]
		if !ok {
			return idx, fmt.Errorf("column %q not found in header %v", name, header)
		}
		idx[i] = p
	}
	return idx, nil
}
